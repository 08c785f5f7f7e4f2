// Package webfetcher fetches validated URLs and turns them into readable text.
//
// # Overview
//
// A Pipeline runs each call through four stages and stops at the first
// failure:
//
//   - validation: weburl.Validator rejects malformed, non-http(s) and
//     private or reserved destinations
//   - rate limiting: a process-wide fixed window, then an optional per-host
//     limiter
//   - fetch: Fetcher performs one bounded GET
//   - extraction: extract.Extractor produces the title and text of 2xx
//     responses
//
// Every failure is reported as a Response carrying a fetcherr.Kind and the
// stage it came from. Run never panics.
//
// # Security
//
// The fetcher dials only the addresses that passed validation. Redirect
// targets are validated with the same rules and pinned before they are
// followed, so neither a redirect nor a second DNS answer can reach a
// private address. Environment proxies are ignored for the same reason.
//
// # Limits
//
// Each call is bounded by its timeout, which covers connecting, headers and
// the body, and by the maximum content length. Bodies are streamed in
// chunks and abandoned as soon as the limit is crossed; a declared
// Content-Length above the limit is rejected without reading.
package webfetcher
