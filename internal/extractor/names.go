package extractor

import (
	"github.com/tidwall/gjson"

	"wmref/internal/wiremock"
)

// BodyFileNames returns the string values of every bodyFileName property in
// a JSON document, at any depth. Invalid JSON yields nil.
func BodyFileNames(data []byte) []string {
	if !gjson.ValidBytes(data) {
		return nil
	}
	var names []string
	collect(gjson.ParseBytes(data), &names)
	return names
}

func collect(v gjson.Result, names *[]string) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, value gjson.Result) bool {
			if key.String() == wiremock.BodyFileNameKey && value.Type == gjson.String {
				*names = append(*names, value.String())
			}
			collect(value, names)
			return true
		})
	case v.IsArray():
		v.ForEach(func(_, value gjson.Result) bool {
			collect(value, names)
			return true
		})
	}
}
