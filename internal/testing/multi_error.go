package testing

import "strings"

// MultiError collects the failures of several checks.
type MultiError []error

func (m MultiError) Error() string {
	msgs := make([]string, 0, len(m))
	for _, err := range m {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "\n")
}

// AppendErr appends err unless it is nil.
func AppendErr(m *MultiError, err error) {
	if err != nil {
		*m = append(*m, err)
	}
}
