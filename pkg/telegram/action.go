// Copyright 2026 Teyda Authors

package telegram

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
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/teyda/teyda/pkg/filestore"
	"github.com/teyda/teyda/pkg/onebot"
)

// handleAction is the canonical action router: stateless dispatch, one
// independent handler per action. Deliberately detected failures map to
// their specific retcodes; anything unexpected collapses to the generic
// failure so no internal detail leaks.
func (a *Adapter) handleAction(ctx context.Context, req *onebot.Request) *onebot.Response {
	switch req.Action {
	case onebot.ActionGetSupportedActions:
		return onebot.OK(supportedActions, req.Echo)
	case onebot.ActionGetStatus:
		return onebot.OK(a.status(), req.Echo)
	case onebot.ActionGetVersion:
		return onebot.OK(onebot.VersionInfo(), req.Echo)
	case onebot.ActionSendMessage:
		return a.sendMessage(req)
	case onebot.ActionDeleteMessage:
		return a.deleteMessage(req)
	case onebot.ActionGetSelfInfo:
		return a.getSelfInfo(req)
	case onebot.ActionGetUserInfo:
		return a.getUserInfo(req)
	case onebot.ActionGetGroupInfo:
		return a.getGroupInfo(req)
	case onebot.ActionGetGroupMemberInfo:
		return a.getGroupMemberInfo(req)
	case onebot.ActionSetGroupName:
		return a.setGroupName(req)
	case onebot.ActionLeaveGroup:
		return a.leaveGroup(req)
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
	var tgErr *tgbotapi.Error
	switch {
	case errors.Is(err, filestore.ErrHashMismatch):
		return onebot.Fail(onebot.RetHashMismatch, "sha256 mismatch", echo)
	case errors.Is(err, filestore.ErrNotFound), errors.Is(err, errBadFileRef):
		return onebot.Fail(onebot.RetBadFileID, "invalid file_id", echo)
	case errors.Is(err, errUnsupportedSegment):
		return onebot.Fail(onebot.RetUnsupportedSegment, "unsupported message segment", echo)
	case errors.As(err, &tgErr):
		return onebot.FailPlatform(tgErr.Message, echo)
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

func (a *Adapter) sendMessage(req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.SendMessageParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	target := params.UserID
	if target == "" {
		target = params.GroupID
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return a.fail(fmt.Errorf("bad chat id %q: %w", target, err), req.Echo)
	}
	chattable, err := a.toChattable(chatID, params.Message)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	sent, err := a.apiClient().Send(chattable)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(&onebot.SendMessageResult{
		MessageID: onebot.MakeMessageID(target, strconv.Itoa(sent.MessageID)),
		Time:      float64(sent.Date),
	}, req.Echo)
}

func (a *Adapter) deleteMessage(req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.DeleteMessageParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	chatPart, msgPart, ok := onebot.ParseMessageID(params.MessageID)
	if !ok {
		return a.fail(fmt.Errorf("bad message id %q", params.MessageID), req.Echo)
	}
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	messageID, err := strconv.Atoi(msgPart)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	if _, err := a.apiClient().Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(nil, req.Echo)
}

func (a *Adapter) getSelfInfo(req *onebot.Request) *onebot.Response {
	me, err := a.apiClient().GetMe()
	if err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(&onebot.SelfInfo{
		UserID:          strconv.FormatInt(me.ID, 10),
		UserName:        me.UserName,
		UserDisplayname: displayName(me.FirstName, me.LastName),
	}, req.Echo)
}

func (a *Adapter) getUserInfo(req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.GetUserInfoParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	userID, err := strconv.ParseInt(params.UserID, 10, 64)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	chat, err := a.apiClient().GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: userID},
	})
	if err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(&onebot.UserInfo{
		UserID:          strconv.FormatInt(chat.ID, 10),
		UserName:        chat.UserName,
		UserDisplayname: displayName(chat.FirstName, chat.LastName),
	}, req.Echo)
}

func (a *Adapter) getGroupInfo(req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.GetGroupInfoParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	groupID, err := strconv.ParseInt(params.GroupID, 10, 64)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	chat, err := a.apiClient().GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: groupID},
	})
	if err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(&onebot.GroupInfo{
		GroupID:   strconv.FormatInt(chat.ID, 10),
		GroupName: chat.Title,
	}, req.Echo)
}

func (a *Adapter) getGroupMemberInfo(req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.GetGroupMemberInfoParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	groupID, err := strconv.ParseInt(params.GroupID, 10, 64)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	userID, err := strconv.ParseInt(params.UserID, 10, 64)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	member, err := a.apiClient().GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: groupID, UserID: userID},
	})
	if err != nil {
		return a.fail(err, req.Echo)
	}
	info := &onebot.UserInfo{}
	if member.User != nil {
		info.UserID = strconv.FormatInt(member.User.ID, 10)
		info.UserName = member.User.UserName
		info.UserDisplayname = displayName(member.User.FirstName, member.User.LastName)
	}
	return onebot.OK(info, req.Echo)
}

func (a *Adapter) setGroupName(req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.SetGroupNameParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	groupID, err := strconv.ParseInt(params.GroupID, 10, 64)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	if _, err := a.apiClient().Request(tgbotapi.NewChatTitle(groupID, params.GroupName)); err != nil {
		return a.fail(err, req.Echo)
	}
	return onebot.OK(nil, req.Echo)
}

func (a *Adapter) leaveGroup(req *onebot.Request) *onebot.Response {
	params, err := decodeParams[onebot.LeaveGroupParams](req)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	groupID, err := strconv.ParseInt(params.GroupID, 10, 64)
	if err != nil {
		return a.fail(err, req.Echo)
	}
	if _, err := a.apiClient().Request(tgbotapi.LeaveChatConfig{ChatID: groupID}); err != nil {
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

// getPlatformFile resolves a Telegram file id to its download URL, fetches
// the content, and for path mode persists a copy named by a
// platform-prefixed content hash.
func (a *Adapter) getPlatformFile(ctx context.Context, name, mode, echo string) *onebot.Response {
	data, filePath, err := a.fetchPlatformFile(ctx, name)
	if err != nil {
		return a.fail(err, echo)
	}
	sum := filestore.Hash(data)
	base := path.Base(filePath)
	switch mode {
	case "url":
		return onebot.OK(&onebot.GetFileResult{Name: base, URL: dataURI(base, data), SHA256: sum}, echo)
	case "path":
		saved := Namespace + "_" + sum + path.Ext(filePath)
		if _, err := a.store.Save(saved, data, ""); err != nil {
			return a.fail(err, echo)
		}
		p, err := a.store.Path(saved)
		if err != nil {
			return a.fail(err, echo)
		}
		return onebot.OK(&onebot.GetFileResult{Name: saved, Path: p, SHA256: sum}, echo)
	case "data":
		return onebot.OK(&onebot.GetFileResult{Name: base, Data: data, SHA256: sum}, echo)
	default:
		return onebot.FailGeneric(echo)
	}
}

// fetchPlatformFile downloads a Telegram-resident file and reports its
// platform file path for naming.
func (a *Adapter) fetchPlatformFile(ctx context.Context, fileID string) ([]byte, string, error) {
	api := a.apiClient()
	file, err := api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, "", err
	}
	url, err := api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, "", err
	}
	data, err := fetchURL(ctx, url, nil)
	if err != nil {
		return nil, "", err
	}
	return data, file.FilePath, nil
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
			data, filePath, err := a.fetchPlatformFile(ctx, name)
			if err != nil {
				return a.fail(err, req.Echo)
			}
			// Cache locally under the native name so transfer stages can
			// slice without refetching.
			if _, err := a.store.Save(name, data, ""); err != nil {
				return a.fail(err, req.Echo)
			}
			return onebot.OK(&onebot.PrepareFileResult{
				Name:      path.Base(filePath),
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
