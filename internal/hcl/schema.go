package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every supported top-level block from a single file.
type fileRoot struct {
	Sources []*sourceBlock  `hcl:"source,block"`
	Stages  []*stageBlock   `hcl:"stage,block"`
	Headers []*headersBlock `hcl:"headers,block"`
	Servers []*serverBlock  `hcl:"server,block"`
	Remain  hcl.Body        `hcl:",remain"`
}

// sourceBlock is `source "<table>" { ... }`.
type sourceBlock struct {
	Table   string   `hcl:"table,label"`
	Key     string   `hcl:"key"`
	Section string   `hcl:"section,optional"`
	OrderBy []string `hcl:"order_by"`
	Where   string   `hcl:"where,optional"`
}

// stageBlock is `stage "<name>" { ... }`. Value stays unevaluated; it is
// evaluated per row by the pipeline.
type stageBlock struct {
	Name   string         `hcl:"name,label"`
	Cached *bool          `hcl:"cached,optional"`
	Type   hcl.Expression `hcl:"type,optional"`
	Value  hcl.Expression `hcl:"value"`
}

type headersBlock struct {
	Cached *bool          `hcl:"cached,optional"`
	Type   hcl.Expression `hcl:"type,optional"`
	Value  hcl.Expression `hcl:"value"`
}

type serverBlock struct {
	Listen string `hcl:"listen,optional"`
}
