//go:build !serialcheck

package serial

const checkedByDefault = false
