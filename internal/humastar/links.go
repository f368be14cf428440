package humastar

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// Links holds RFC 8288 Link header values keyed by operation path.
type Links struct {
	entry  string
	search string
	byPath map[string][]string
}

// AutoLinks walks the OpenAPI paths and derives hypermedia links:
// item ↔ collection, collection → entry point, entry point → every
// collection, and a search rel to searchPath when it is registered.
// Operations tagged "ui" are skipped. Call after all routes are registered.
func AutoLinks(api huma.API, entry, searchPath string) *Links {
	l := &Links{}
	l.Build(api, entry, searchPath)
	return l
}

// Build (re)derives the links. A Links value can be handed to the API
// config as a Transformer before any route exists and built afterwards.
func (l *Links) Build(api huma.API, entry, searchPath string) {
	oapi := api.OpenAPI()
	l.entry, l.search = entry, ""
	l.byPath = map[string][]string{}
	if _, ok := oapi.Paths[searchPath]; ok {
		l.search = searchPath
	}

	var collections, items []string
	for p, pi := range oapi.Paths {
		if hasTag(primaryTags(pi), "ui") {
			continue
		}
		if strings.Contains(p, "{") {
			items = append(items, p)
		} else {
			collections = append(collections, p)
		}
	}
	sort.Strings(collections)
	sort.Strings(items)

	for _, item := range items {
		if parent := nearestParent(oapi, item); parent != "" {
			l.add(item, parent, "collection")
			l.add(item, parent, "up")
		}
		if pi := oapi.Paths[item]; pi.Put != nil || pi.Post != nil {
			l.add(item, item, "edit")
		}
	}

	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item) == coll {
				l.add(coll, item, "item")
			}
		}
		if oapi.Paths[coll].Post != nil {
			l.add(coll, coll, "create-form")
		}
		if coll != entry {
			l.add(coll, entry, "up")
			l.add(entry, coll, lastSegment(coll))
		}
		if l.search != "" && coll != l.search {
			l.add(coll, l.search, "search")
		}
	}

	l.add(entry, "/openapi.json", "describedby")
	l.add(entry, "/openapi.json", "service-desc")
	l.add(entry, "/docs", "service-doc")

	for p, pi := range oapi.Paths {
		headers, ok := l.byPath[p]
		if !ok {
			continue
		}
		for _, op := range operationsOf(pi) {
			if op != nil {
				injectResponseLinks(op, headers)
			}
		}
	}
}

// For returns the Link header values for an operation path.
func (l *Links) For(opPath string) []string {
	if l == nil {
		return nil
	}
	return l.byPath[opPath]
}

// Root returns the entry point links, for non-Huma handlers such as pages.
func (l *Links) Root() []string {
	if l == nil {
		return nil
	}
	return l.For(l.entry)
}

// Transformer returns a Huma Transformer that injects the links at runtime,
// a self link for item paths, and any state-dependent actions of the body.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}
		for _, link := range l.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func (l *Links) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	for _, existing := range l.byPath[from] {
		if existing == val {
			return
		}
	}
	l.byPath[from] = append(l.byPath[from], val)
}

// nearestParent walks up an item path until a registered path is found.
func nearestParent(oapi *huma.OpenAPI, p string) string {
	for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if _, ok := oapi.Paths[dir]; ok {
			return dir
		}
	}
	return ""
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range operationsOf(pi) {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}

// injectResponseLinks adds OpenAPI Link objects to the operation's success
// response so the document itself carries the relationships.
func injectResponseLinks(op *huma.Operation, headers []string) {
	if op.Responses == nil {
		return
	}
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  fmt.Sprintf("Related: %s", rel),
		}
	}
}

func parseLinkHeader(h string) (rel, href string) {
	parts := strings.SplitN(h, ";", 2)
	if len(parts) < 2 {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(parts[0]), "<>")
	relPart := strings.TrimSpace(parts[1])
	if strings.HasPrefix(relPart, `rel="`) {
		rel = strings.Trim(relPart[4:], `"`)
	}
	return rel, href
}
