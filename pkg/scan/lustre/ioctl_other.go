//go:build !linux

package lustre

func getStripe(path string) ([]byte, error) {
	return nil, ErrUnsupported
}
