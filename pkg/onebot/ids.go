// Copyright 2026 Teyda Authors

package onebot

import "strings"

// Composite identifiers. Message ids pair the chat scope with the
// platform-native message id so they stay reversible; file ids pair a
// namespace ("td" for local storage, a platform tag otherwise) with the
// name the content is known by in that namespace.

// MakeMessageID combines a chat scope id and a native message id.
func MakeMessageID(chatID, nativeID string) string {
	return chatID + "/" + nativeID
}

// ParseMessageID splits a composite message id back into its parts.
func ParseMessageID(messageID string) (chatID, nativeID string, ok bool) {
	return strings.Cut(messageID, "/")
}

// MakeFileID combines a namespace and a local name into a file reference.
func MakeFileID(namespace, name string) string {
	return namespace + "/" + name
}

// ParseFileID splits a file reference into namespace and name.
func ParseFileID(fileID string) (namespace, name string, ok bool) {
	namespace, name, ok = strings.Cut(fileID, "/")
	if !ok || namespace == "" || name == "" {
		return "", "", false
	}
	return namespace, name, true
}
