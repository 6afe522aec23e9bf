package stream

import "strings"

// feedBuffer appends chunk to the retained leftover and splits the result
// into complete logical units per the decoder's separator. The trailing
// segment is returned as the new leftover unless the decoder already
// recognizes it as a complete unit (a provider may omit the final
// separator before closing the body).
//
// Chunk boundaries carry no meaning: a unit split across any number of
// chunks, including mid-separator, reassembles identically. Empty segments
// from consecutive separators are dropped.
func feedBuffer(leftover string, chunk []byte, dec formatDecoder) (units []string, rest string) {
	s := leftover + string(chunk)
	if s == "" {
		return nil, ""
	}

	parts := strings.Split(s, dec.separator())
	rest = parts[len(parts)-1]
	parts = parts[:len(parts)-1]

	if rest != "" && dec.completeUnit(rest) {
		parts = append(parts, rest)
		rest = ""
	}

	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		units = append(units, p)
	}
	return units, rest
}
