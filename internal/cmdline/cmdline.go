// Package cmdline converts between argument lists and the single raw command
// line string carried by the relay.
//
// One format is used on every platform: the Windows argv convention
// implemented by CommandLineToArgvW, so a command line captured by a
// secondary on Windows is parsed the same way as one composed from os.Args
// on unix.
package cmdline

import "strings"

// Current returns the raw command line of the running process.
func Current() string {
	return current()
}

// Compose quotes args so that Tokenize(Compose(args)) returns args.
func Compose(args []string) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(quote(a))
	}
	return b.String()
}

func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"") {
		return s
	}

	var b strings.Builder
	b.WriteByte('"')
	slashes := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			slashes++
		case '"':
			// Backslashes preceding a quote are doubled, plus one for the quote.
			b.WriteString(strings.Repeat(`\`, slashes+1))
			slashes = 0
		default:
			slashes = 0
		}
		b.WriteByte(c)
	}
	// Trailing backslashes would escape the closing quote.
	b.WriteString(strings.Repeat(`\`, slashes))
	b.WriteByte('"')
	return b.String()
}

// Tokenize splits a raw command line into arguments:
//   - spaces and tabs separate arguments outside quotes;
//   - a double quote toggles quoting, and "" inside quotes is a literal quote;
//   - 2n backslashes before a quote yield n backslashes and a quoting toggle;
//   - 2n+1 backslashes before a quote yield n backslashes and a literal quote;
//   - other backslashes are literal.
func Tokenize(line string) []string {
	var (
		args    []string
		cur     []byte
		inArg   bool
		inQuote bool
		slashes int
	)

	flushSlashes := func(n int) {
		for ; n > 0; n-- {
			cur = append(cur, '\\')
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\':
			slashes++
			inArg = true
			continue

		case c == '"':
			flushSlashes(slashes / 2)
			inArg = true
			if slashes%2 == 1 {
				cur = append(cur, '"')
			} else if inQuote && i+1 < len(line) && line[i+1] == '"' {
				cur = append(cur, '"')
				i++
			} else {
				inQuote = !inQuote
			}
			slashes = 0
			continue

		case (c == ' ' || c == '\t') && !inQuote:
			flushSlashes(slashes)
			slashes = 0
			if inArg {
				args = append(args, string(cur))
				cur = cur[:0]
				inArg = false
			}
			continue
		}

		flushSlashes(slashes)
		slashes = 0
		cur = append(cur, c)
		inArg = true
	}

	flushSlashes(slashes)
	if inArg {
		args = append(args, string(cur))
	}
	return args
}
