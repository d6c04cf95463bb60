package wire

import "unicode/utf8"

func validUTF8(b []byte) bool { return utf8.Valid(b) }

func sizeStr(s string) int { return 2 + len(s) }

func sizeStrs(ss []string) int {
	n := 2
	for _, s := range ss {
		n += sizeStr(s)
	}
	return n
}

func sizeQids(qs []Qid) int { return 2 + QidLen*len(qs) }

func sizeData(b []byte) int { return 4 + len(b) }
