package output

// NewTailWriter returns a writer that keeps the most recent limit entries.
func NewTailWriter(limit int) TailWriter {
	return make(TailWriter, limit)
}

// TailWriter is an io.Writer backed by a bounded channel. When full, the
// oldest entry is evicted so writes never block log emission.
type TailWriter chan string

func (tw TailWriter) Write(p []byte) (int, error) { // nolint:unparam // err is needed to implement io.Writer
	if len(tw) == cap(tw) {
		<-tw
	}

	tw <- string(p)

	return len(p), nil
}
