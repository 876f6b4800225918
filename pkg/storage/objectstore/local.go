package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// localClient stores objects below a single directory. Keys are slash
// separated and may not escape the root.
type localClient struct {
	root *os.Root
}

func newLocalClient(cfg Config) (Client, error) {
	if cfg.LocalRoot == "" {
		return nil, fmt.Errorf("local object store requires a root directory")
	}
	if err := os.MkdirAll(cfg.LocalRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create local root: %w", err)
	}
	root, err := os.OpenRoot(cfg.LocalRoot)
	if err != nil {
		return nil, fmt.Errorf("open local root: %w", err)
	}
	return &localClient{root: root}, nil
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("%w: empty key", ErrNotFound)
	}
	return key, nil
}

func (l *localClient) Put(ctx context.Context, key string, reader io.Reader, size int64, _ string, _ map[string]string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if dir := path.Dir(key); dir != "." {
		if err := l.root.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create object dir: %w", err)
		}
	}

	tmp := key + ".part"
	f, err := l.root.Create(tmp)
	if err != nil {
		return fmt.Errorf("create object: %w", err)
	}
	written, copyErr := io.Copy(f, readerWithContext{ctx: ctx, r: reader})
	closeErr := f.Close()
	if copyErr == nil && size > 0 && written != size {
		copyErr = fmt.Errorf("short write: wrote %d of %d bytes", written, size)
	}
	if copyErr != nil || closeErr != nil {
		_ = l.root.Remove(tmp)
		if copyErr != nil {
			return fmt.Errorf("write object: %w", copyErr)
		}
		return fmt.Errorf("close object: %w", closeErr)
	}
	if err := l.root.Rename(tmp, key); err != nil {
		_ = l.root.Remove(tmp)
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

func (l *localClient) Open(_ context.Context, key string) (Object, Info, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, Info{}, err
	}
	f, err := l.root.Open(key)
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		f.Close()
		return nil, Info{}, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, key)
	}
	return f, Info{Key: key, Size: st.Size(), ModTime: st.ModTime()}, nil
}

func (l *localClient) Close() error {
	return l.root.Close()
}

// readerWithContext stops an upload copy once ctx is done.
type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
