package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/beyondstorage/go-storage/v4/pairs"
	"github.com/beyondstorage/go-storage/v4/services"
	"github.com/beyondstorage/go-storage/v4/types"
	"go.uber.org/zap"

	"github.com/beyondstorage/beyond-relay/command"
	"github.com/beyondstorage/beyond-relay/utils"
)

var transferAborted = &command.Response{
	Code: StatusTransferAborted,
	Text: "Connection closed; transfer aborted",
}

func (c *Handler) handleSTOR() {
	c.storeOrAppend(c.absPath(c.param), false)
}

func (c *Handler) handleAPPE() {
	if _, ok := c.storager.(types.Appender); !ok {
		c.WriteMessage(StatusCommandNotImplemented, "this type of storage is not support append")
		return
	}
	c.storeOrAppend(c.absPath(c.param), true)
}

func (c *Handler) storeOrAppend(path string, append bool) {
	c.ctxRest = 0

	w, err := c.storagerWriter(path, append)
	if err != nil {
		c.WriteMessage(StatusFileActionNotTaken, err.Error())
		return
	}

	c.runDataCommand(func(ctx context.Context, conn command.DataConnection) (*command.Response, error) {
		// Persist whatever arrived, also when the transfer is aborted.
		size, err := w.ReadFrom(context.Background(), conn.Reader(context.Background()))
		c.log.Debug("Upload persisted", zap.String("path", path), zap.Int64("size", size), zap.Error(err))
		if ctx.Err() != nil {
			return transferAborted, nil
		}
		if err != nil {
			return &command.Response{Code: StatusFileActionNotTaken, Text: err.Error()}, nil
		}
		return nil, nil
	})
}

// storagerWriter picks how an upload to path is persisted.
func (c *Handler) storagerWriter(path string, append bool) (*utils.StoragerWriter, error) {
	appender, ok := c.storager.(types.Appender)
	if !ok {
		return utils.NewStoragerWriter(path, c.storager), nil
	}

	object, err := c.storager.Stat(path)
	if err != nil && !errors.Is(err, services.ErrObjectNotExist) {
		return nil, err
	}
	if !append || errors.Is(err, services.ErrObjectNotExist) {
		object, err = appender.CreateAppendWithContext(c.commandAbortCtx, path)
		if err != nil {
			return nil, err
		}
	}
	return utils.NewStoragerAppender(object, c.storager), nil
}

func (c *Handler) handleRETR() {
	path := c.absPath(c.param)
	offset := c.ctxRest
	c.ctxRest = 0

	c.runDataCommand(func(ctx context.Context, conn command.DataConnection) (*command.Response, error) {
		_, err := c.storager.ReadWithContext(ctx, path, conn.Writer(ctx), pairs.WithOffset(offset))
		if ctx.Err() != nil {
			return transferAborted, nil
		}
		if err != nil {
			return &command.Response{Code: StatusActionNotTaken, Text: err.Error()}, nil
		}
		return nil, nil
	})
}

func (c *Handler) handleDELE() {
	path := c.absPath(c.param)
	err := c.storager.DeleteWithContext(c.commandAbortCtx, path)
	if err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't delete %s: %v", path, err))
		return
	}
	c.WriteMessage(StatusFileOK, fmt.Sprintf("Removed file %s", path))
}

func (c *Handler) handleRNFR() {
	path := c.absPath(c.param)
	if _, err := c.storager.Stat(path); err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't access %s: %v", path, err))
		return
	}
	c.ctxRnfr = path
	c.WriteMessage(StatusFileActionPending, "Ready for RNTO")
}

func (c *Handler) handleRNTO() {
	defer func() {
		c.ctxRnfr = ""
	}()
	if c.ctxRnfr == "" {
		c.WriteMessage(StatusBadCommandSequence, "RNFR is expected before RNTO")
		return
	}
	mover, ok := c.storager.(types.Mover)
	if !ok {
		c.WriteMessage(StatusCommandNotImplemented, "this type of storage is not support rename")
		return
	}
	if err := mover.Move(c.ctxRnfr, c.absPath(c.param)); err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't rename file: %v", err))
		return
	}
	c.WriteMessage(StatusFileOK, "Renamed")
}

func (c *Handler) handleSIZE() {
	path := c.absPath(c.param)
	object, err := c.storager.Stat(path)
	if err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't access %s: %v", path, err))
		return
	}
	length, ok := object.GetContentLength()
	if !ok {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't get size of %s", path))
		return
	}
	c.WriteMessage(StatusFileStatus, strconv.FormatInt(length, 10))
}

func (c *Handler) handleMDTM() {
	path := c.absPath(c.param)
	object, err := c.storager.Stat(path)
	if err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't access %s: %v", path, err))
		return
	}
	lastModified, ok := object.GetLastModified()
	if !ok {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't access %s", path))
		return
	}
	c.WriteMessage(StatusFileStatus, lastModified.UTC().Format("20060102150405"))
}

func (c *Handler) handleALLO() {
	c.WriteMessage(StatusNotImplemented, "No storage allocation necessary")
}

func (c *Handler) handleREST() {
	size, err := strconv.ParseInt(c.param, 10, 64)
	if err != nil || size < 0 {
		c.WriteMessage(StatusSyntaxErrorParameters, fmt.Sprintf("Couldn't parse size %q", c.param))
		return
	}
	c.ctxRest = size
	c.WriteMessage(StatusFileActionPending, fmt.Sprintf("Restarting at %d", size))
}
