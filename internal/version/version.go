// ABOUTME: Version and product identity
// ABOUTME: Reported in logs, the UI header and the health endpoint
package version

const (
	// Version of the client and mock server
	Version = "0.3.0"

	// Product name shown to users
	Product = "Ose"

	// Manufacturer string advertised over mDNS
	Manufacturer = "Resonate"
)

// String returns "Product Version"
func String() string {
	return Product + " " + Version
}
