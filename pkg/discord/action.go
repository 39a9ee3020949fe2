// Copyright 2026 Teyda Authors

package discord

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"

	"github.com/teyda/teyda/pkg/filestore"
	"github.com/teyda/teyda/pkg/onebot"
)

// handleAction is the canonical action router, the push-platform twin of the
// polling adapter's: stateless dispatch, one handler per action, specific
// retcodes only for deliberately detected failures.
func (a *Adapter) handleAction(ctx context.Context, req *onebot.Request) *onebot.Response {
	switch req.Action {
	case onebot.ActionGetSupportedActions:
		return onebot.OK(supportedActions, req.Echo)
	case onebot.ActionGetStatus:
		return onebot.OK(a.status(), req.Echo)
	case onebot.ActionGetVersion:
		return onebot.OK(onebot.VersionInfo(), req.Echo)
	case onebot.ActionSendMessage:
		return a.sendMessage(ctx, req)
	case onebot.ActionDeleteMessage:
		return a.deleteMessage(ctx, req)
	case onebot.ActionGetSelfInfo:
		return a.getSelfInfo(ctx, req)
	case onebot.ActionGetUserInfo:
		return a.getUserInfo(ctx, req)
	case onebot.ActionGetGroupInfo:
		return a.getGroupInfo(ctx, req)
	case onebot.ActionGetGroupMemberInfo:
		return a.getGroupMemberInfo(ctx, req)
	case onebot.ActionSetGroupName:
		return a.setGroupName(ctx, req)
	case onebot.ActionLeaveGroup:
		return a.leaveGroup(ctx, req)
	case onebot.ActionUploadFile:
		return a.uploadFile(ctx, req)
	case onebot.ActionUploadFileFragmented:
		return a.uploadFileFragmented(req)
	case onebot.ActionGetFile:
		return a.getFile(ctx, req)
	case onebot.ActionGetFileFragmented:
		return a.getFileFragmented(ctx, req)
	default:
		return onebot.FailUnsupportedAction(req.Echo)
	}
}

// fail converts an error into the canonical failure response for it.
func (a *Adapter) fail(err error, echo string) *onebot.Response {
	a.log.Warn().Err(err).Msg("Action failed")
	var apiErr *APIError
	switch {
	case errors.Is(err, filestore.ErrHashMismatch):
		return onebot.Fail(onebot.RetHashMismatch, "sha256 mismatch", echo)
	case errors.Is(err, filestore.ErrNotFound), errors.Is(err, errBadFileRef):
		return onebot.Fail(onebot.RetBadFileID, "invalid file_id", echo)
	case errors.Is(err, errUnsupportedSegment):
		return onebot.Fail(onebot.RetUnsupportedSegment, "unsupported message segment", echo)
	case errors.As(err, &apiErr):
		return onebot.FailPlatform(apiErr.Message, echo)
	default:
		return onebot.FailGeneric(echo)
	}
}

func decodeParams[T any](req *onebot.Request) (T, error) {
	var params T
	if len(req.Params) == 0 {
		return params, nil
	}
	err := json.Unmarshal(req.Params, &params)
	return params, err
}

// sendMessage posts to the group's channel directly; private targets first
// resolve the direct-message channel for the user.
func (a *Adapter) sendMessage(ctx context.Context, req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.SendMessageParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	channelID := params.GroupID
	if channelID == "" {
		dm, err := a.client.CreateDM(ctx, params.UserID)
		if err != nil {
			return a.fail(err, req.Echo)
		}
		channelID = dm.ID
	}

	payload, files, err := a.buildOutbound(ctx, params.Message)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	sent, err := a.client.CreateMessage(ctx, channelID, payload, files)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	result := &onebot.SendMessageResult{
		MessageID: onebot.MakeMessageID(channelID, sent.ID),
		Time:      onebot.Now(),
	}
	if !sent.Timestamp.IsZero() {
		result.Time = float64(sent.Timestamp.UnixMilli()) / 1000
	}
	return onebot.OK(result, req.Echo)
}

func (a *Adapter) deleteMessage(ctx context.Context, req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.DeleteMessageParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	channelID, messageID, ok := onebot.ParseMessageID(params.MessageID)
	if !ok {
		return a.fail(fmt.Errorf("bad message id %q", params.MessageID), req.Echo)
	}
	if err := a.client.DeleteMessage(ctx, channelID, messageID); err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(nil, req.Echo)
}

func (a *Adapter) getSelfInfo(ctx context.Context, req *onebot.Request) *onebot.Response {
	user, err := a.client.GetCurrentUser(ctx)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(&onebot.SelfInfo{
		UserID:          user.ID,
		UserName:        user.Username,
		UserDisplayname: displayName(user),
	}, req.Echo)
}

func (a *Adapter) getUserInfo(ctx context.Context, req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.GetUserInfoParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	user, err := a.client.GetUser(ctx, params.UserID)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(&onebot.UserInfo{
		UserID:          user.ID,
		UserName:        user.Username,
		UserDisplayname: displayName(user),
	}, req.Echo)
}

func (a *Adapter) getGroupInfo(ctx context.Context, req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.GetGroupInfoParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	channel, err := a.client.GetChannel(ctx, params.GroupID)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(&onebot.GroupInfo{
		GroupID:   channel.ID,
		GroupName: channel.Name,
	}, req.Echo)
}

// getGroupMemberInfo resolves the channel to its guild first; membership is
// guild-scoped on this platform.
func (a *Adapter) getGroupMemberInfo(ctx context.Context, req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.GetGroupMemberInfoParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	channel, err := a.client.GetChannel(ctx, params.GroupID)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	member, err := a.client.GetGuildMember(ctx, channel.GuildID, params.UserID)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	info := &onebot.UserInfo{}
	if member.User != nil {
		info.UserID = member.User.ID
		info.UserName = member.User.Username
		info.UserDisplayname = displayName(member.User)
	}
	if member.Nick != "" {
		info.UserDisplayname = member.Nick
	}
	return onebot.OK(info, req.Echo)
}

func (a *Adapter) setGroupName(ctx context.Context, req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.SetGroupNameParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	if err := a.client.ModifyChannelName(ctx, params.GroupID, params.GroupName); err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(nil, req.Echo)
}

func (a *Adapter) leaveGroup(ctx context.Context, req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.LeaveGroupParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	channel, err := a.client.GetChannel(ctx, params.GroupID)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	if err := a.client.LeaveGuild(ctx, channel.GuildID); err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(nil, req.Echo)
}

func (a *Adapter) uploadFile(ctx context.Context, req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.UploadFileParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	var data []byte
	switch params.Type {
	case "url":
		data, err = fetchURL(ctx, params.URL, params.Headers)
	case "path":
		data, err = os.ReadFile(params.Path)
	case "data":
		data = params.Data
	default:
		return onebot.FailGeneric(req.Echo)
	}
	if err != nil {
		return a.fail(err, req.Echo)
	}
	fileID, err := a.store.Save(params.Name, data, params.SHA256)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(&onebot.FileIDResult{FileID: fileID}, req.Echo)
}

func (a *Adapter) uploadFileFragmented(req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.UploadFileFragmentedParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	switch params.Stage {
	case "prepare":
		fileID, err := a.store.Prepare(params.Name, params.TotalSize)
		if err != nil {
			return a.fail(err, req.Echo)
		}
		return onebot.OK(&onebot.FileIDResult{FileID: fileID}, req.Echo)
	case "transfer":
		name, resp := a.localName(params.FileID, req.Echo)
		if resp != nil {
			return resp
		}
		if err := a.store.Transfer(name, params.Offset, params.Data); err != nil {
			return a.fail(err, req.Echo)
		}
		return onebot.OK(nil, req.Echo)
	case "finish":
		name, resp := a.localName(params.FileID, req.Echo)
		if resp != nil {
			return resp
		}
		fileID, err := a.store.Finish(name, params.SHA256)
		if err != nil {
			return a.fail(err, req.Echo)
		}
		return onebot.OK(&onebot.FileIDResult{FileID: fileID}, req.Echo)
	default:
		return onebot.FailGeneric(req.Echo)
	}
}

// localName extracts the local store name from a file reference, rejecting
// other namespaces.
func (a *Adapter) localName(fileID, echo string) (string, *onebot.Response) {
	ns, name, ok := onebot.ParseFileID(fileID)
	if !ok || ns != filestore.Namespace {
		return "", onebot.Fail(onebot.RetBadFileID, "invalid file_id", echo)
	}
	return name, nil
}

func (a *Adapter) getFile(ctx context.Context, req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.GetFileParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	ns, name, ok := onebot.ParseFileID(params.FileID)
	if !ok {
		return onebot.Fail(onebot.RetBadFileID, "invalid file_id", req.Echo)
	}
	switch ns {
	case filestore.Namespace:
		return a.getLocalFile(name, params.Type, req.Echo)
	case Namespace:
		return a.getPlatformFile(ctx, name, params.Type, req.Echo)
	default:
		return onebot.Fail(onebot.RetBadFileID, "invalid file_id", req.Echo)
	}
}

func (a *Adapter) getLocalFile(name, mode, echo string) *onebot.Response {
	data, sum, err := a.store.Read(name)
	if err != nil {
		return a.fail(err, echo)
	}
	result := &onebot.GetFileResult{Name: name, SHA256: sum}
	switch mode {
	case "url":
		result.URL = dataURI(name, data)
	case "path":
		p, err := a.store.Path(name)
		if err != nil {
			return a.fail(err, echo)
		}
		result.Path = p
	case "data":
		result.Data = data
	default:
		return onebot.FailGeneric(echo)
	}
	return onebot.OK(result, echo)
}

// getPlatformFile re-resolves an attachment reference, downloads the content
// and for path mode persists a copy named by a platform-prefixed content
// hash.
func (a *Adapter) getPlatformFile(ctx context.Context, name, mode, echo string) *onebot.Response {
	att, err := a.resolveAttachment(ctx, name)
	if err != nil {
		return a.fail(err, echo)
	}
	data, err := a.client.Download(ctx, att.URL)
	if err != nil {
		return a.fail(err, echo)
	}
	sum := filestore.Hash(data)
	switch mode {
	case "url":
		return onebot.OK(&onebot.GetFileResult{Name: att.Filename, URL: dataURI(att.Filename, data), SHA256: sum}, echo)
	case "path":
		saved := Namespace + "_" + sum + path.Ext(att.Filename)
		if _, err := a.store.Save(saved, data, ""); err != nil {
			return a.fail(err, echo)
		}
		p, err := a.store.Path(saved)
		if err != nil {
			return a.fail(err, echo)
		}
		return onebot.OK(&onebot.GetFileResult{Name: saved, Path: p, SHA256: sum}, echo)
	case "data":
		return onebot.OK(&onebot.GetFileResult{Name: att.Filename, Data: data, SHA256: sum}, echo)
	default:
		return onebot.FailGeneric(echo)
	}
}

func (a *Adapter) getFileFragmented(ctx context.Context, req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.GetFileFragmentedParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	ns, name, ok := onebot.ParseFileID(params.FileID)
	if !ok {
		return onebot.Fail(onebot.RetBadFileID, "invalid file_id", req.Echo)
	}
	switch params.Stage {
	case "prepare":
		switch ns {
		case filestore.Namespace:
			data, sum, err := a.store.Read(name)
			if err != nil {
				return a.fail(err, req.Echo)
			}
			return onebot.OK(&onebot.PrepareFileResult{Name: name, TotalSize: int64(len(data)), SHA256: sum}, req.Echo)
		case Namespace:
			att, err := a.resolveAttachment(ctx, name)
			if err != nil {
				return a.fail(err, req.Echo)
			}
			data, err := a.client.Download(ctx, att.URL)
			if err != nil {
				return a.fail(err, req.Echo)
			}
			// Cache locally under the reference name so transfer stages can
			// slice without refetching.
			if _, err := a.store.Save(name, data, ""); err != nil {
				return a.fail(err, req.Echo)
			}
			return onebot.OK(&onebot.PrepareFileResult{
				Name:      att.Filename,
				TotalSize: int64(len(data)),
				SHA256:    filestore.Hash(data),
			}, req.Echo)
		default:
			return onebot.Fail(onebot.RetBadFileID, "invalid file_id", req.Echo)
		}
	case "transfer":
		data, err := a.store.ReadAt(name, params.Offset, params.Size)
		if err != nil {
			return a.fail(err, req.Echo)
		}
		return onebot.OK(&onebot.TransferFileResult{Data: data}, req.Echo)
	default:
		return onebot.FailGeneric(req.Echo)
	}
}

// displayName prefers the global display name over the account name.
func displayName(user *User) string {
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}

// dataURI renders content as an embeddable data: URL.
func dataURI(name string, data []byte) string {
	mimeType := mime.TypeByExtension(path.Ext(name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// fetchURL downloads a URL with optional extra headers. Timeouts are left
// to the default transport.
func fetchURL(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
