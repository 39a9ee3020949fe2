// Copyright 2026 Teyda Authors

package onebot

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Action names understood by the routers.
const (
	ActionGetSupportedActions  = "get_supported_actions"
	ActionGetStatus            = "get_status"
	ActionGetVersion           = "get_version"
	ActionSendMessage          = "send_message"
	ActionDeleteMessage        = "delete_message"
	ActionGetSelfInfo          = "get_self_info"
	ActionGetUserInfo          = "get_user_info"
	ActionGetGroupInfo         = "get_group_info"
	ActionGetGroupMemberInfo   = "get_group_member_info"
	ActionSetGroupName         = "set_group_name"
	ActionLeaveGroup           = "leave_group"
	ActionUploadFile           = "upload_file"
	ActionUploadFileFragmented = "upload_file_fragmented"
	ActionGetFile              = "get_file"
	ActionGetFileFragmented    = "get_file_fragmented"
)

// Canonical retcodes.
const (
	RetOK                 int64 = 0
	RetUnsupportedAction  int64 = 10002
	RetUnsupportedSegment int64 = 10005
	RetHashMismatch       int64 = 32001
	RetBadFileID          int64 = 32002
	RetPlatformError      int64 = 34000
	RetInternalError      int64 = 36000
)

// Response status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Request is a canonical action request. Params stays raw until the handler
// for the named action decodes it into its own shape.
type Request struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
	Echo   string          `json:"echo,omitempty"`
}

// Response is a canonical action response. Echo always mirrors the request,
// empty string when the request carried none.
type Response struct {
	Status  string `json:"status"`
	Retcode int64  `json:"retcode"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	Echo    string `json:"echo"`
}

// OK builds a success response.
func OK(data any, echo string) *Response {
	return &Response{Status: StatusOK, Retcode: RetOK, Data: data, Echo: echo}
}

// Fail builds a failure response with a specific retcode.
func Fail(retcode int64, message, echo string) *Response {
	return &Response{Status: StatusFailed, Retcode: retcode, Data: nil, Message: message, Echo: echo}
}

// FailGeneric is the catch-all failure. Deliberately content-free so no
// internal detail leaks to the controller.
func FailGeneric(echo string) *Response {
	return Fail(RetInternalError, "internal error", echo)
}

// FailUnsupportedAction rejects an action outside the adapter's set.
func FailUnsupportedAction(echo string) *Response {
	return Fail(RetUnsupportedAction, "unsupported action", echo)
}

// FailPlatform reports an operation the platform explicitly refused.
func FailPlatform(description, echo string) *Response {
	return Fail(RetPlatformError, fmt.Sprintf("platform did not execute the operation: %q", description), echo)
}

// Bytes is a binary blob that decodes from either a base64 string or a JSON
// byte array, matching how controllers send inline file data. It marshals
// back as base64.
type Bytes []byte

func (b *Bytes) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("invalid base64 data: %w", err)
		}
		*b = decoded
		return nil
	}
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]byte, len(raw))
	for i, v := range raw {
		if v < 0 || v > 0xff {
			return fmt.Errorf("byte value %d out of range at index %d", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// SendMessageParams is the params shape of send_message.
type SendMessageParams struct {
	DetailType string  `json:"detail_type,omitempty"`
	UserID     string  `json:"user_id,omitempty"`
	GroupID    string  `json:"group_id,omitempty"`
	Message    Message `json:"message"`
}

// SendMessageResult is the data shape of a successful send_message.
type SendMessageResult struct {
	MessageID string  `json:"message_id"`
	Time      float64 `json:"time"`
}

type DeleteMessageParams struct {
	MessageID string `json:"message_id"`
}

type GetUserInfoParams struct {
	UserID string `json:"user_id"`
}

type GetGroupInfoParams struct {
	GroupID string `json:"group_id"`
}

type GetGroupMemberInfoParams struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

type SetGroupNameParams struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
}

type LeaveGroupParams struct {
	GroupID string `json:"group_id"`
}

// SelfInfo is the data shape of get_self_info.
type SelfInfo struct {
	UserID          string `json:"user_id"`
	UserName        string `json:"user_name"`
	UserDisplayname string `json:"user_displayname"`
}

// UserInfo is the data shape of get_user_info and get_group_member_info.
type UserInfo struct {
	UserID          string `json:"user_id"`
	UserName        string `json:"user_name"`
	UserDisplayname string `json:"user_displayname"`
	UserRemark      string `json:"user_remark"`
}

// GroupInfo is the data shape of get_group_info.
type GroupInfo struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
}

// UploadFileParams covers the three upload_file input modes: url, path and
// inline data.
type UploadFileParams struct {
	Type    string            `json:"type"`
	Name    string            `json:"name"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Path    string            `json:"path,omitempty"`
	Data    Bytes             `json:"data,omitempty"`
	SHA256  string            `json:"sha256,omitempty"`
}

// UploadFileFragmentedParams covers the prepare/transfer/finish stages.
type UploadFileFragmentedParams struct {
	Stage     string `json:"stage"`
	Name      string `json:"name,omitempty"`
	TotalSize int64  `json:"total_size,omitempty"`
	FileID    string `json:"file_id,omitempty"`
	Offset    int64  `json:"offset,omitempty"`
	Data      Bytes  `json:"data,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
}

// FileIDResult is the data shape of the actions returning a file reference.
type FileIDResult struct {
	FileID string `json:"file_id"`
}

type GetFileParams struct {
	FileID string `json:"file_id"`
	Type   string `json:"type"`
}

// GetFileResult is the data shape of get_file; exactly one of URL, Path and
// Data is populated depending on the requested mode.
type GetFileResult struct {
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
	Path   string `json:"path,omitempty"`
	Data   Bytes  `json:"data,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

type GetFileFragmentedParams struct {
	Stage  string `json:"stage"`
	FileID string `json:"file_id"`
	Offset int64  `json:"offset,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

// PrepareFileResult is the data shape of get_file_fragmented.prepare.
type PrepareFileResult struct {
	Name      string `json:"name"`
	TotalSize int64  `json:"total_size"`
	SHA256    string `json:"sha256"`
}

// TransferFileResult is the data shape of get_file_fragmented.transfer.
type TransferFileResult struct {
	Data Bytes `json:"data"`
}
