package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/beyondstorage/go-storage/v4/pairs"
	"github.com/beyondstorage/go-storage/v4/services"
	"github.com/beyondstorage/go-storage/v4/types"

	"github.com/beyondstorage/beyond-relay/command"
)

func (c *Handler) absPath(p string) string {
	p = path.Clean(p)
	if path.IsAbs(p) {
		return p
	}
	return path.Join(c.Path(), p)
}

func (c *Handler) handleCWD() {
	if c.param == ".." {
		c.handleCDUP()
		return
	}

	p := c.absPath(c.param)
	if _, err := c.getDirInfo(p); err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("CD issue: %v", err))
		return
	}
	c.SetPath(p)
	c.WriteMessage(StatusFileOK, fmt.Sprintf("CD worked on %s", p))
}

func (c *Handler) handleCDUP() {
	if c.Path() == "/" {
		c.WriteMessage(StatusActionNotTaken, "Already at root")
		return
	}
	parent := path.Dir(c.Path())
	c.SetPath(parent)
	c.WriteMessage(StatusFileOK, fmt.Sprintf("CDUP worked on %s", parent))
}

func (c *Handler) handlePWD() {
	c.WriteMessage(StatusPathCreated, "\""+c.Path()+"\" is the current directory")
}

func (c *Handler) handleMKD() {
	p := c.absPath(c.param)
	_, err := c.getDirInfo(p)
	if err == nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Dir already exists: %s", p))
		return
	}
	if !errors.Is(err, services.ErrObjectNotExist) {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Could not create %s: %v", p, err))
		return
	}
	direr, ok := c.storager.(types.Direr)
	if !ok {
		c.WriteMessage(StatusCommandNotImplemented, "this type of storage is not support create dir")
		return
	}
	if _, err := direr.CreateDir(p); err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Could not create %s: %v", p, err))
		return
	}
	c.WriteMessage(StatusPathCreated, fmt.Sprintf("Created dir %s", p))
}

func (c *Handler) handleRMD() {
	p := c.absPath(c.param)
	err := c.storager.DeleteWithContext(c.commandAbortCtx, p)
	if err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Could not delete dir %s: %v", p, err))
		return
	}
	c.WriteMessage(StatusFileOK, fmt.Sprintf("Deleted dir %s", p))
}

func (c *Handler) getDirInfo(p string) (*fileInfo, error) {
	o, err := c.storager.Stat(p, pairs.WithObjectMode(types.ModeDir))
	return &fileInfo{o}, err
}

func (c *Handler) handleLIST() {
	c.list(fileStat)
}

func (c *Handler) handleNLST() {
	c.list((*fileInfo).Name)
}

// list sends one line per entry of the requested directory, formatted by
// format, over a data connection.
func (c *Handler) list(format func(*fileInfo) string) {
	files, err := c.listFile(c.absPath(listPath(c.param)))
	if err != nil {
		c.WriteMessage(StatusActionNotTaken, err.Error())
		return
	}

	c.runDataCommand(func(ctx context.Context, conn command.DataConnection) (*command.Response, error) {
		err := dirList(conn.Writer(ctx), files, format)
		if ctx.Err() != nil {
			return transferAborted, nil
		}
		return nil, err
	})
}

// listPath drops ls style flags such as "-la" some clients send.
func listPath(param string) string {
	fields := strings.Fields(param)
	for len(fields) > 0 && strings.HasPrefix(fields[0], "-") {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

func (c *Handler) listFile(p string) ([]*fileInfo, error) {
	iterator, err := c.storager.List(p)
	if err != nil {
		return nil, err
	}

	var files []*fileInfo
	for {
		o, err := iterator.Next()
		if err != nil {
			if errors.Is(err, types.IterateDone) {
				break
			}
			return nil, err
		}
		files = append(files, &fileInfo{o})
	}
	return files, nil
}

func fileStat(file *fileInfo) string {
	return fmt.Sprintf(
		"%s 1 ftp ftp %12d %s %s",
		file.Mode(),
		file.Size(),
		file.ModTime().Format(" Jan _2 15:04 "),
		file.Name(),
	)
}

func dirList(w io.Writer, files []*fileInfo, format func(*fileInfo) string) error {
	for _, file := range files {
		if _, err := fmt.Fprintf(w, "%s\r\n", format(file)); err != nil {
			return err
		}
	}
	return nil
}

type fileInfo struct {
	*types.Object
}

func (f *fileInfo) Mode() os.FileMode {
	if f.GetMode().IsDir() {
		return os.ModeDir
	}
	return os.ModePerm
}

func (f *fileInfo) Size() int64 {
	n, _ := f.GetContentLength()
	return n
}

func (f *fileInfo) Name() string {
	return path.Base(f.GetPath())
}

func (f *fileInfo) ModTime() time.Time {
	modified, _ := f.GetLastModified()
	return modified
}
