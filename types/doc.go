// Package types provides core types used across the luma framework.
// This package has ZERO dependencies on other luma packages to avoid
// circular imports. All other packages should import types from here.
package types
