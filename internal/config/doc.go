// Package config defines the format-agnostic configuration model for the
// application, along with the Loader and Converter interfaces implemented by
// concrete formats.
//
// The `config.Model` is the single source of truth for the `pipeline`,
// `sqlwatch` and `server` wiring done in `app`. Concrete implementations of
// the interfaces, such as for HCL, are provided in separate packages.
package config
