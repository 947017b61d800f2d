package extractor

// BodyRef is one bodyFileName property found in a mapping document.
type BodyRef struct {
	Filepath   string `json:"filepath"`
	Value      string `json:"value"`      // decoded string value
	Normalized string `json:"normalized"` // value without its leading slash
	Line       int    `json:"line"`       // 1-based line of the value literal
	Column     int    `json:"column"`     // 1-based byte column of the opening quote
	StartByte  int    `json:"start_byte"`
	EndByte    int    `json:"end_byte"`
}
