// Package filekey classifies stored artifact keys such as
// "{execution}/{step}/{name}.pdf".
package filekey

import "strings"

type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
	KindJSON  Kind = "json"
	KindOther Kind = "other"
)

// Kinds lists the groups in display order.
var Kinds = []Kind{KindPDF, KindImage, KindJSON, KindOther}

func Classify(key string) Kind {
	k := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(k, ".png"), strings.HasSuffix(k, ".jpg"), strings.HasSuffix(k, ".jpeg"):
		return KindImage
	case strings.HasSuffix(k, ".pdf"):
		return KindPDF
	case strings.HasSuffix(k, ".json"):
		return KindJSON
	default:
		return KindOther
	}
}

func DisplayName(key string) string {
	k := strings.TrimRight(strings.TrimSpace(key), "/")
	if i := strings.LastIndex(k, "/"); i >= 0 {
		return k[i+1:]
	}
	return k
}

// StripExt removes ext from the end of name, ignoring case.
func StripExt(name, ext string) string {
	if len(name) >= len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext) {
		return name[:len(name)-len(ext)]
	}
	return name
}

// Group buckets keys by kind. Input order is kept inside each bucket and
// blank keys are dropped.
func Group(keys []string) map[Kind][]string {
	out := make(map[Kind][]string, len(Kinds))
	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		kind := Classify(key)
		out[kind] = append(out[kind], key)
	}
	return out
}
