package encoding

import (
	"strings"

	"github.com/saintfish/chardet"
)

// ChardetDetector implements Detector with saintfish/chardet. chardet has no
// notion of plain ASCII, so a sample without any byte >= 0x80 is reported as
// ASCII with full confidence before chardet is consulted.
type ChardetDetector struct {
	detector *chardet.Detector
}

func NewChardetDetector() *ChardetDetector {
	return &ChardetDetector{detector: chardet.NewTextDetector()}
}

func (d *ChardetDetector) Detect(sample []byte) (string, float64, error) {
	if isASCII(sample) {
		return ASCII, 1, nil
	}
	res, err := d.detector.DetectBest(sample)
	if err != nil {
		return "", 0, err
	}
	return CanonicalName(res.Charset), float64(res.Confidence) / 100, nil
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

var aliases = map[string]string{
	"us-ascii":     ASCII,
	"utf8":         UTF8,
	"utf-8-bom":    UTF8WithBOM,
	"utf_8_sig":    UTF8WithBOM,
	"gb-18030":     "gb18030",
	"iso-8859-8-i": "iso-8859-8",
}

// CanonicalName lower-cases an encoding label and folds known aliases.
func CanonicalName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[n]; ok {
		return a
	}
	return n
}
