package security

import "runtime"

// platformOrder returns the host family's blocklist first, then the
// other family's, skipping nil lists.
func platformOrder(unix, windows *Blocklist) []*Blocklist {
	first, second := unix, windows
	if runtime.GOOS == "windows" {
		first, second = windows, unix
	}
	var lists []*Blocklist
	if first != nil {
		lists = append(lists, first)
	}
	if second != nil {
		lists = append(lists, second)
	}
	return lists
}

// DefaultUnixBlocklist holds the built-in Unix-family patterns.
var DefaultUnixBlocklist = []string{
	`rm\s+-[a-z]*r[a-z]*f[a-z]*\s+/(\s|$)`,
	`mkfs(\.|\s)`,
	`dd\s+.*of=/dev/`,
	`:\(\)\s*\{.*:\|:`,
	`chmod\s+-R\s+777\s+/(\s|$)`,
}

// DefaultWindowsBlocklist holds the built-in Windows-family patterns.
var DefaultWindowsBlocklist = []string{
	`format\s+c:`,
	`del\s+/s\s+/q\s+c:\\`,
	`rd\s+/s\s+/q\s+c:\\`,
	`Remove-Item\s+.*-Recurse\s+.*-Force\s+.*c:\\`,
}
