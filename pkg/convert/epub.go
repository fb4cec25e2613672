package convert

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"langgrade/pkg/domain"
)

// epubBook is the text content of an EPUB in reading order.
type epubBook struct {
	Parts    []string
	Metadata domain.DocumentMetadata
}

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Metadata struct {
		Titles    []string `xml:"title"`
		Creators  []string `xml:"creator"`
		Languages []string `xml:"language"`
	} `xml:"metadata"`
	Manifest []struct {
		ID        string `xml:"id,attr"`
		Href      string `xml:"href,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

// readEPUB opens the archive in memory and extracts visible body text per
// content document. Content documents follow the package spine, then the
// manifest; archives without a package file fall back to archive order.
// Manifest metadata is best effort.
func readEPUB(data []byte) (epubBook, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return epubBook{}, fmt.Errorf("open epub: %w", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var book epubBook
	opfPath := findPackagePath(files, zr.File)
	var order []string
	if opfPath != "" {
		if pkg, err := readPackage(files[opfPath]); err == nil {
			book.Metadata = pkg.metadata()
			order = pkg.contentOrder(path.Dir(opfPath))
		}
	}
	if len(order) == 0 {
		for _, f := range zr.File {
			if isHTMLName(f.Name) {
				order = append(order, f.Name)
			}
		}
	}

	for _, name := range order {
		f, ok := files[name]
		if !ok {
			continue
		}
		raw, err := readZipFile(f)
		if err != nil {
			continue
		}
		doc, err := html.Parse(bytes.NewReader(raw))
		if err != nil {
			continue
		}
		text := strings.TrimSpace(bodyText(doc))
		if text == "" {
			continue
		}
		book.Parts = append(book.Parts, text)
	}
	return book, nil
}

func findPackagePath(files map[string]*zip.File, ordered []*zip.File) string {
	if f, ok := files["META-INF/container.xml"]; ok {
		if raw, err := readZipFile(f); err == nil {
			var c epubContainer
			if xml.Unmarshal(raw, &c) == nil {
				for _, rf := range c.Rootfiles {
					if _, ok := files[rf.FullPath]; ok {
						return rf.FullPath
					}
				}
			}
		}
	}
	for _, f := range ordered {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return f.Name
		}
	}
	return ""
}

func readPackage(f *zip.File) (opfPackage, error) {
	var pkg opfPackage
	raw, err := readZipFile(f)
	if err != nil {
		return pkg, err
	}
	if err := xml.Unmarshal(raw, &pkg); err != nil {
		return pkg, fmt.Errorf("parse package: %w", err)
	}
	return pkg, nil
}

func (p opfPackage) metadata() domain.DocumentMetadata {
	first := func(values []string) string {
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
		return ""
	}
	return domain.DocumentMetadata{
		Title:    first(p.Metadata.Titles),
		Creator:  first(p.Metadata.Creators),
		Language: first(p.Metadata.Languages),
	}
}

func (p opfPackage) contentOrder(base string) []string {
	hrefs := make(map[string]string, len(p.Manifest))
	var manifestOrder []string
	for _, item := range p.Manifest {
		if !isHTMLMedia(item.MediaType) && !isHTMLName(item.Href) {
			continue
		}
		name := resolveHref(base, item.Href)
		hrefs[item.ID] = name
		manifestOrder = append(manifestOrder, name)
	}
	var order []string
	seen := make(map[string]bool)
	for _, ref := range p.Spine {
		if name, ok := hrefs[ref.IDRef]; ok && !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	if len(order) > 0 {
		return order
	}
	return manifestOrder
}

func resolveHref(base, href string) string {
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		href = href[:i]
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if base == "." || base == "" {
		return path.Clean(href)
	}
	return path.Join(base, href)
}

func isHTMLMedia(mediaType string) bool {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "application/xhtml+xml", "text/html":
		return true
	default:
		return false
	}
}

func isHTMLName(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".xhtml") || strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm")
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// bodyText returns the text of the document body, skipping script and
// style elements. Block elements end with a space so words never merge.
func bodyText(doc *html.Node) string {
	root := findElement(doc, "body")
	if root == nil {
		root = doc
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode && isBlock(n.Data) {
			buf.WriteByte(' ')
		}
	}
	walk(root)
	return buf.String()
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "br", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr", "section", "blockquote":
		return true
	default:
		return false
	}
}
