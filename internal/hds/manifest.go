package hds

import (
	"encoding/base64"
	"encoding/xml"
	"strconv"
	"strings"

	"hdsfetch/internal/fault"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

// F4M namespaces accepted on the manifest root and its children.
const (
	NamespaceF4M1 = "http://ns.adobe.com/f4m/1.0"
	NamespaceF4M2 = "http://ns.adobe.com/f4m/2.0"
)

// Manifest is a parsed F4M document.
type Manifest struct {
	// BaseURL is the <baseURL> element, or the manifest request URL.
	BaseURL            string
	Media              []MediaEntry
	Duration           mo.Option[float64]
	PlayerVerification mo.Option[string]
	// Fields holds the text of every attribute-less top-level element.
	Fields map[string]string
}

// MediaEntry is one <media> element.
type MediaEntry struct {
	URL             string
	Bitrate         mo.Option[int]
	BootstrapInfoID string
	// Metadata is the decoded onMetaData script data body, nil when absent.
	Metadata []byte
	// Href points to a child manifest. Such entries cannot be fetched.
	Href string
	// Bootstrap is shared by every entry referencing the same id.
	Bootstrap *BootstrapInfo
}

// BootstrapInfo is one <bootstrapInfo> element. Exactly one of URL and
// Data is normally set.
type BootstrapInfo struct {
	ID      string
	Profile string
	URL     mo.Option[string]
	Data    []byte
}

// node is a namespace-aware catch-all XML element.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []node     `xml:",any"`
}

func (n *node) attr(name string) (string, bool) {
	a, ok := lo.Find(n.Attrs, func(a xml.Attr) bool { return a.Name.Local == name })
	return a.Value, ok
}

// dataAttrs returns the attributes other than namespace declarations.
func (n *node) dataAttrs() []xml.Attr {
	return lo.Filter(n.Attrs, func(a xml.Attr, _ int) bool {
		return a.Name.Space != "xmlns" && !(a.Name.Space == "" && a.Name.Local == "xmlns")
	})
}

// scalars maps the local name of every attribute-less F4M child to its text.
func (n *node) scalars() map[string]string {
	fields := make(map[string]string)
	for _, child := range n.Children {
		if isF4M(child.XMLName.Space) && len(child.dataAttrs()) == 0 {
			fields[child.XMLName.Local] = strings.TrimSpace(child.Text)
		}
	}
	return fields
}

func isF4M(space string) bool {
	return space == NamespaceF4M1 || space == NamespaceF4M2
}

// ParseManifest decodes an F4M manifest fetched from requestURL.
func ParseManifest(data []byte, requestURL string) (*Manifest, error) {
	var root node
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fault.Format("", 0, "manifest: %v", err)
	}
	if root.XMLName.Local != "manifest" || !isF4M(root.XMLName.Space) {
		return nil, fault.Format("", 0, "manifest root is {%s}%s", root.XMLName.Space, root.XMLName.Local)
	}

	m := &Manifest{Fields: root.scalars()}
	m.BaseURL = lo.CoalesceOrEmpty(m.Fields["baseURL"], requestURL)
	if v, ok := m.Fields["duration"]; ok && v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fault.Format("", 0, "manifest duration %q: %v", v, err)
		}
		if d > 0 {
			m.Duration = mo.Some(d)
		}
	}
	if v, ok := m.Fields["pv-2.0"]; ok && v != "" {
		m.PlayerVerification = mo.Some(v)
	}

	bootstraps := make(map[string]*BootstrapInfo)
	for i := range root.Children {
		child := &root.Children[i]
		if !isF4M(child.XMLName.Space) || child.XMLName.Local != "bootstrapInfo" {
			continue
		}
		info, err := parseBootstrapInfo(child)
		if err != nil {
			return nil, err
		}
		bootstraps[info.ID] = info
	}

	for i := range root.Children {
		child := &root.Children[i]
		if !isF4M(child.XMLName.Space) || child.XMLName.Local != "media" {
			continue
		}
		media, err := parseMedia(child, bootstraps)
		if err != nil {
			return nil, err
		}
		m.Media = append(m.Media, media)
	}

	return m, nil
}

func parseBootstrapInfo(n *node) (*BootstrapInfo, error) {
	info := &BootstrapInfo{}
	info.ID, _ = n.attr("id")
	info.Profile, _ = n.attr("profile")
	if u, ok := n.attr("url"); ok {
		info.URL = mo.Some(u)
	}
	if text := strings.TrimSpace(n.Text); text != "" {
		data, err := decodeBase64(text)
		if err != nil {
			return nil, fault.Format("", 0, "bootstrapInfo %q: %v", info.ID, err)
		}
		info.Data = data
	}
	return info, nil
}

func parseMedia(n *node, bootstraps map[string]*BootstrapInfo) (MediaEntry, error) {
	fields := make(map[string]string, len(n.Attrs))
	for _, a := range n.dataAttrs() {
		fields[a.Name.Local] = a.Value
	}
	for k, v := range n.scalars() {
		fields[k] = v
	}

	media := MediaEntry{
		URL:             fields["url"],
		BootstrapInfoID: fields["bootstrapInfoId"],
		Href:            fields["href"],
	}
	if v, ok := fields["bitrate"]; ok {
		bitrate, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return MediaEntry{}, fault.Format("", 0, "media bitrate %q: %v", v, err)
		}
		media.Bitrate = mo.Some(bitrate)
	}
	if v := fields["metadata"]; v != "" {
		data, err := decodeBase64(v)
		if err != nil {
			return MediaEntry{}, fault.Format("", 0, "media metadata: %v", err)
		}
		media.Metadata = data
	}

	// Child manifests are rejected when fetched, not here.
	if media.Href != "" {
		return media, nil
	}
	info, ok := bootstraps[media.BootstrapInfoID]
	if !ok {
		return MediaEntry{}, fault.Lookup("media %q references unknown bootstrapInfo %q", media.URL, media.BootstrapInfoID)
	}
	media.Bootstrap = info
	return media, nil
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
}
