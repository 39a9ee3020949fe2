// Copyright 2026 Teyda Authors

package discord

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/teyda/teyda/pkg/onebot"
)

func do(t *testing.T, a *Adapter, action string, params any, echo string) *onebot.Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = b
	}
	return a.handleAction(context.Background(), &onebot.Request{Action: action, Params: raw, Echo: echo})
}

func wantOK(t *testing.T, resp *onebot.Response) {
	t.Helper()
	if resp.Status != onebot.StatusOK || resp.Retcode != onebot.RetOK {
		t.Fatalf("response = %s/%d (%s), want ok", resp.Status, resp.Retcode, resp.Message)
	}
}

func wantFail(t *testing.T, resp *onebot.Response, retcode int64) {
	t.Helper()
	if resp.Status != onebot.StatusFailed || resp.Retcode != retcode {
		t.Fatalf("response = %s/%d (%s), want failed/%d", resp.Status, resp.Retcode, resp.Message, retcode)
	}
}

func TestSendMessageToChannel(t *testing.T) {
	var gotAuth, gotContent string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /channels/500/messages", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var payload createMessagePayload
		json.NewDecoder(r.Body).Decode(&payload)
		gotContent = payload.Content
		json.NewEncoder(w).Encode(Message{ID: "901", ChannelID: "500"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, _ := newTestAdapter(t, Config{Token: "tok", APIBase: srv.URL})
	resp := do(t, a, onebot.ActionSendMessage, onebot.SendMessageParams{
		DetailType: "group",
		GroupID:    "500",
		Message:    onebot.Message{onebot.Text("hi "), onebot.Mention("123")},
	}, "s1")
	wantOK(t, resp)

	if gotAuth != "Bot tok" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotContent != "hi <@123>" {
		t.Errorf("content = %q", gotContent)
	}
	if id := resp.Data.(*onebot.SendMessageResult).MessageID; id != "500/901" {
		t.Errorf("message_id = %q, want 500/901", id)
	}
}

func TestSendMessagePrivateOpensDM(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/@me/channels", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["recipient_id"] != "9" {
			t.Errorf("recipient = %q, want 9", body["recipient_id"])
		}
		json.NewEncoder(w).Encode(Channel{ID: "dm1"})
	})
	mux.HandleFunc("POST /channels/dm1/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Message{ID: "902", ChannelID: "dm1"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, _ := newTestAdapter(t, Config{Token: "tok", APIBase: srv.URL})
	resp := do(t, a, onebot.ActionSendMessage, onebot.SendMessageParams{
		DetailType: "private",
		UserID:     "9",
		Message:    onebot.Message{onebot.Text("hi")},
	}, "")
	wantOK(t, resp)
	if id := resp.Data.(*onebot.SendMessageResult).MessageID; id != "dm1/902" {
		t.Errorf("message_id = %q, want dm1/902", id)
	}
}

func TestSendMessageWithFileIsMultipart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /channels/500/messages", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("not multipart: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		var payload createMessagePayload
		json.Unmarshal([]byte(r.FormValue("payload_json")), &payload)
		if payload.Content != "cap" {
			t.Errorf("payload content = %q", payload.Content)
		}
		file, header, err := r.FormFile("files[0]")
		if err != nil {
			t.Errorf("files[0] missing: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "cat.png" || string(data) != "png bytes" {
			t.Errorf("file = %q/%q", header.Filename, data)
		}
		json.NewEncoder(w).Encode(Message{ID: "903", ChannelID: "500"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, _ := newTestAdapter(t, Config{Token: "tok", APIBase: srv.URL})
	if _, err := a.store.Save("cat.png", []byte("png bytes"), ""); err != nil {
		t.Fatal(err)
	}
	resp := do(t, a, onebot.ActionSendMessage, onebot.SendMessageParams{
		GroupID: "500",
		Message: onebot.Message{
			onebot.Media(onebot.SegImage, "td/cat.png"),
			onebot.Text("cap"),
		},
	}, "")
	wantOK(t, resp)
}

func TestSendMessagePlatformRefusal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /channels/500/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"code": 50001, "message": "Missing Access"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, _ := newTestAdapter(t, Config{Token: "tok", APIBase: srv.URL})
	resp := do(t, a, onebot.ActionSendMessage, onebot.SendMessageParams{
		GroupID: "500",
		Message: onebot.Message{onebot.Text("hi")},
	}, "")
	wantFail(t, resp, onebot.RetPlatformError)
	if !strings.Contains(resp.Message, "Missing Access") {
		t.Errorf("message = %q, want platform description carried", resp.Message)
	}
}

func TestDeleteMessage(t *testing.T) {
	deleted := false
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /channels/500/messages/901", func(w http.ResponseWriter, r *http.Request) {
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, _ := newTestAdapter(t, Config{Token: "tok", APIBase: srv.URL})
	wantOK(t, do(t, a, onebot.ActionDeleteMessage, onebot.DeleteMessageParams{MessageID: "500/901"}, ""))
	if !deleted {
		t.Errorf("delete endpoint not hit")
	}
	wantFail(t, do(t, a, onebot.ActionDeleteMessage, onebot.DeleteMessageParams{MessageID: "no-slash"}, ""), onebot.RetInternalError)
}

func TestUserAndSelfInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/@me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(User{ID: "111", Username: "teyda", GlobalName: "Teyda Bot"})
	})
	mux.HandleFunc("GET /users/9", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(User{ID: "9", Username: "ada"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, _ := newTestAdapter(t, Config{Token: "tok", APIBase: srv.URL})

	resp := do(t, a, onebot.ActionGetSelfInfo, nil, "")
	wantOK(t, resp)
	self := resp.Data.(*onebot.SelfInfo)
	if self.UserID != "111" || self.UserDisplayname != "Teyda Bot" {
		t.Errorf("self info = %#v", self)
	}

	resp = do(t, a, onebot.ActionGetUserInfo, onebot.GetUserInfoParams{UserID: "9"}, "")
	wantOK(t, resp)
	user := resp.Data.(*onebot.UserInfo)
	if user.UserID != "9" || user.UserDisplayname != "ada" {
		t.Errorf("user info = %#v, want username fallback", user)
	}
}

func TestGroupActionsResolveChannel(t *testing.T) {
	var left, renamed bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /channels/500", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Channel{ID: "500", GuildID: "77", Name: "general"})
	})
	mux.HandleFunc("PATCH /channels/500", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		renamed = body["name"] == "ops"
		json.NewEncoder(w).Encode(Channel{ID: "500", Name: body["name"]})
	})
	mux.HandleFunc("GET /guilds/77/members/9", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GuildMember{User: &User{ID: "9", Username: "ada"}, Nick: "Ace"})
	})
	mux.HandleFunc("DELETE /users/@me/guilds/77", func(w http.ResponseWriter, r *http.Request) {
		left = true
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, _ := newTestAdapter(t, Config{Token: "tok", APIBase: srv.URL})

	resp := do(t, a, onebot.ActionGetGroupInfo, onebot.GetGroupInfoParams{GroupID: "500"}, "")
	wantOK(t, resp)
	if info := resp.Data.(*onebot.GroupInfo); info.GroupName != "general" {
		t.Errorf("group info = %#v", info)
	}

	resp = do(t, a, onebot.ActionGetGroupMemberInfo, onebot.GetGroupMemberInfoParams{GroupID: "500", UserID: "9"}, "")
	wantOK(t, resp)
	if member := resp.Data.(*onebot.UserInfo); member.UserDisplayname != "Ace" {
		t.Errorf("member info = %#v, want nick preferred", member)
	}

	wantOK(t, do(t, a, onebot.ActionSetGroupName, onebot.SetGroupNameParams{GroupID: "500", GroupName: "ops"}, ""))
	if !renamed {
		t.Errorf("rename endpoint not hit")
	}

	wantOK(t, do(t, a, onebot.ActionLeaveGroup, onebot.LeaveGroupParams{GroupID: "500"}, ""))
	if !left {
		t.Errorf("leave endpoint not hit")
	}
}

func TestGetPlatformAttachment(t *testing.T) {
	content := []byte("attachment bytes")
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("GET /channels/500/messages/900", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Message{
			ID:        "900",
			ChannelID: "500",
			Attachments: []Attachment{
				{ID: "700", Filename: "cat.png", URL: srvURL + "/cdn/cat.png"},
			},
		})
	})
	mux.HandleFunc("GET /cdn/cat.png", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("token leaked to CDN download")
		}
		w.Write(content)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	a, _ := newTestAdapter(t, Config{Token: "tok", APIBase: srv.URL})

	resp := do(t, a, onebot.ActionGetFile, onebot.GetFileParams{FileID: "dc/500-900-700", Type: "data"}, "")
	wantOK(t, resp)
	result := resp.Data.(*onebot.GetFileResult)
	if result.Name != "cat.png" || string(result.Data) != string(content) {
		t.Errorf("platform file = %#v", result)
	}

	// Unknown attachment id inside an existing message.
	wantFail(t, do(t, a, onebot.ActionGetFile, onebot.GetFileParams{FileID: "dc/500-900-999", Type: "data"}, ""), onebot.RetBadFileID)
	// Malformed reference.
	wantFail(t, do(t, a, onebot.ActionGetFile, onebot.GetFileParams{FileID: "dc/justone", Type: "data"}, ""), onebot.RetBadFileID)
}

func TestUploadThenSendRoundTrip(t *testing.T) {
	a, _ := newTestAdapter(t, Config{Token: "tok"})

	resp := do(t, a, onebot.ActionUploadFile, onebot.UploadFileParams{
		Type: "data",
		Name: "note.txt",
		Data: []byte("hello"),
	}, "")
	wantOK(t, resp)
	if id := resp.Data.(*onebot.FileIDResult).FileID; id != "td/note.txt" {
		t.Errorf("file_id = %q", id)
	}

	resp = do(t, a, onebot.ActionGetFile, onebot.GetFileParams{FileID: "td/note.txt", Type: "data"}, "")
	wantOK(t, resp)
	if got := resp.Data.(*onebot.GetFileResult); string(got.Data) != "hello" {
		t.Errorf("round trip = %#v", got)
	}
}

func TestUnsupportedActionAndEcho(t *testing.T) {
	a, _ := newTestAdapter(t, Config{Token: "tok"})
	resp := do(t, a, "set_avatar", nil, "e9")
	wantFail(t, resp, onebot.RetUnsupportedAction)
	if resp.Echo != "e9" {
		t.Errorf("echo = %q, want e9", resp.Echo)
	}

	resp = do(t, a, onebot.ActionGetSupportedActions, nil, "")
	wantOK(t, resp)
	if actions := resp.Data.([]string); len(actions) != 15 {
		t.Errorf("got %d actions, want 15", len(actions))
	}
}
