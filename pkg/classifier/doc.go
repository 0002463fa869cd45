/*
Package classifier turns raw fuzzer records into stored findings.

Classification is a pure function over one record: no I/O, no clock
reads, identical inputs give identical outputs. That purity is what
makes result replay safe; a redelivered result re-derives the exact
same findings with the exact same ids.

# Rules

A record accumulates issue strings from three analyses:

  - URL patterns: case-insensitive regexes over the full URL, each
    carrying a severity level quoted in the issue text, plus a
    sensitive-extension check on the parsed path.
  - Status code: annotations for 200, 301/302, 403 and 500.
  - Content length: empty, very small, and very large responses.

Responses with status 400, 404 or 500 are treated as noise and dropped
unless the URL itself fired a rule. A plain 404 never becomes a
finding; /backup.tar returning 404 still does.

Severity is the highest level named in any issue text, searched
critical > high > medium > low. Issues without a level-bearing prefix
yield low.
*/
package classifier
