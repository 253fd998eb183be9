//go:build !ucs2

package charset

// Active is the wide-string mode the guest was built with.
const Active = UTF32
