package main

// config is the YAML-decodable policy for one benchmark run, per
// spec.md §6's "policy-enum glue" external collaborator. Flags parsed
// by main override whichever of these fields the user explicitly
// passes on the command line; everything else keeps the config
// file's (or the built-in default's) value.
type config struct {
	Processors       int     `json:"processors"`
	PerProcessor     int     `json:"perProcessor"`
	StringLen        int     `json:"stringLen"`
	Distribution     string  `json:"distribution"` // random | dn-ratio | skewed | shared-prefix
	DistinctRatio    float64 `json:"distinctRatio"`
	Mode             string  `json:"mode"` // plain | robust
	Sample           string  `json:"sample"` // num-strings | num-chars
	HashEncoding     string  `json:"hashEncoding"` // raw | golomb-sequential
	EstimatePrefixes bool    `json:"estimatePrefixes"`
	Compression      string  `json:"compression"` // "", s2, zstd, zstd-better
	Validate         string  `json:"validate"` // off | cheap | exhaustive
	Seed             int64   `json:"seed"`
}

func defaultConfig() config {
	return config{
		Processors:   4,
		PerProcessor: 20000,
		StringLen:    16,
		Distribution: "random",
		DistinctRatio: 0.1,
		Mode:         "plain",
		Sample:       "num-strings",
		HashEncoding: "raw",
		Validate:     "cheap",
		Seed:         1,
	}
}
