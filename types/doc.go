// Package types provides core types used across the kbflow knowledge base.
// This package has ZERO dependencies on other kbflow packages to avoid
// circular imports. All other packages should import types from here.
package types
