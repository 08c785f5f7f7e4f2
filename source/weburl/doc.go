// Package weburl provides URL validation for the fetch pipeline.
//
// # Overview
//
// A Validator turns caller input (a URL string and an optional timeout in
// seconds) into an immutable Request, or rejects it with a classified
// *fetcherr.Error. Validation performs no page fetch; its only side effect is
// the DNS lookup of the host.
//
// # URL Validation
//
// Checks run cheapest first, so malformed input never triggers DNS:
//
//   - Length limit (default 2048 bytes) and URL syntax
//   - Scheme must be http or https (file, ftp, javascript, data... rejected)
//   - Port must be 1-65535
//   - Timeout must be in (0, max]; absent means the configured default
//   - Host names localhost, *.localhost, *.local, *.internal, *.localdomain,
//     *.home.arpa and configured glob patterns are rejected without DNS
//   - Every resolved address must be publicly routable
//
// # IP Address Handling
//
// BlockedAddrRule names the first matching blocked range:
//
//   - loopback (127.0.0.0/8, ::1)
//   - unspecified (0.0.0.0/8, ::)
//   - private (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16) and unique-local (fc00::/7)
//   - link-local (169.254.0.0/16, fe80::/10)
//   - shared address space (100.64.0.0/10)
//   - multicast (224.0.0.0/4, ff00::/8)
//   - documentation, benchmarking and other IANA reserved blocks
//
// IPv4-mapped IPv6 addresses (::ffff:a.b.c.d) and NAT64 addresses
// (64:ff9b::/96) are judged by the IPv4 address they embed.
//
// Options.AllowedPrefixes exempts operator-chosen ranges from these rules.
// Host name rules still apply to exempted addresses.
//
// # Resolved Addresses
//
// Request.Addrs holds the addresses that passed the check. The fetcher dials
// those addresses directly instead of resolving the host again, which closes
// the window between the checked and the connected address for the initial
// request. Redirect targets go through ValidateRedirect and are pinned the
// same way.
//
// # Usage
//
//	v, err := weburl.NewValidator(weburl.Options{MaxTimeout: time.Minute})
//	if err != nil {
//	    return err
//	}
//	req, err := v.Validate(ctx, "https://example.com", nil)
//	if err != nil {
//	    kind := fetcherr.KindOf(err) // e.g. BlockedHostError
//	}
package weburl
