// Package hcl provides the concrete HCL implementation for the configuration
// loading and value conversion interfaces defined in the `config` package.
// It is responsible for file discovery, parsing, HCL-to-model translation,
// and cty-to-Go data binding for stage values.
package hcl
