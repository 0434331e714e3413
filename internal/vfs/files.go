package vfs

// ReadFile returns the whole content of the file at p.
func (f *FS) ReadFile(p string) (data []byte, err error) {
	s, err := f.Open(p, O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(s); err == nil {
			err = cerr
		}
	}()

	attr, err := s.Node.Ops.Getattr(s.Node)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, attr.Size)
	n, err := f.Read(s, buf, 0, len(buf))
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// WriteFile replaces the content of the file at p, creating it with mode
// (0666 when zero) if needed.
func (f *FS) WriteFile(p string, data []byte, mode Mode) (err error) {
	s, err := f.Open(p, O_TRUNC|O_CREAT|O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(s); err == nil {
			err = cerr
		}
	}()

	_, err = f.Write(s, data, 0, len(data))
	return err
}
