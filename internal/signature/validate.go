package signature

import (
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var signatureAliases = []string{"signature", "thoughtSignature", "thought_signature"}

// ValidateAndStrip deep-walks the conversation tree in body (Gemini
// contents, antigravity-wrapped request.contents, or Anthropic messages) and
// removes signature fields that are not admissible for targetProject. The
// thinking text and thought marker stay; parts left without any field are
// dropped. Returns the cleaned body and how many signatures were stripped.
func ValidateAndStrip(body []byte, targetProject string, v Validator) ([]byte, int) {
	stripped := 0
	for _, path := range []string{"contents", "request.contents", "messages"} {
		arr := gjson.GetBytes(body, path)
		if !arr.Exists() || !arr.IsArray() {
			continue
		}
		body, stripped = stripInArray(body, path, targetProject, v, stripped)
	}
	return body, stripped
}

func stripInArray(body []byte, path, targetProject string, v Validator, stripped int) ([]byte, int) {
	partsField := "parts"
	if path == "messages" {
		partsField = "content"
	}

	msgs := gjson.GetBytes(body, path)
	var dropParts [][2]int // (message index, part index) of parts to drop

	msgs.ForEach(func(mi, msg gjson.Result) bool {
		parts := msg.Get(partsField)
		if !parts.IsArray() {
			return true
		}
		parts.ForEach(func(pi, part gjson.Result) bool {
			sig, alias := findSignature(part)
			if sig == "" {
				return true
			}
			if v != nil && v.IsValidForProject(sig, targetProject) {
				return true
			}
			partPath := path + "." + mi.String() + "." + partsField + "." + pi.String()
			body, _ = sjson.DeleteBytes(body, partPath+"."+alias)
			stripped++
			if isEmptyPart(gjson.GetBytes(body, partPath)) {
				dropParts = append(dropParts, [2]int{int(mi.Int()), int(pi.Int())})
			}
			return true
		})
		return true
	})

	// Drop emptied parts last-first so indexes stay valid.
	for i := len(dropParts) - 1; i >= 0; i-- {
		mi, pi := dropParts[i][0], dropParts[i][1]
		partPath := path + "." + strconv.Itoa(mi) + "." + partsField + "." + strconv.Itoa(pi)
		body, _ = sjson.DeleteBytes(body, partPath)
	}
	return body, stripped
}

// findSignature returns the signature value and the alias it appeared under.
func findSignature(part gjson.Result) (string, string) {
	for _, alias := range signatureAliases {
		if v := part.Get(alias); v.Exists() && v.String() != "" {
			return v.String(), alias
		}
	}
	return "", ""
}

// isEmptyPart reports whether the part has no remaining meaningful field.
// A bare thought marker with no text does not stand on its own.
func isEmptyPart(part gjson.Result) bool {
	if !part.Exists() || !part.IsObject() {
		return false
	}
	empty := true
	part.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "thought", "type":
			return true
		case "text", "thinking":
			if value.String() != "" {
				empty = false
				return false
			}
			return true
		default:
			empty = false
			return false
		}
	})
	return empty
}

// StripAllSignatures removes every signature field from the tree regardless
// of admissibility, used when model or provider changed between attempts.
func StripAllSignatures(body []byte) []byte {
	out, _ := ValidateAndStrip(body, "", rejectAll{})
	return out
}

type rejectAll struct{}

func (rejectAll) IsValidForProject(string, string) bool { return false }
