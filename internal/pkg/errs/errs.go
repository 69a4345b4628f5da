package errs

import (
	"errors"
	"fmt"
)

// Kind 错误类型
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingFile
	KindUnsupportedType
	KindFileTooLarge
	KindAnalysisFailed
	KindStoreCorrupt
	KindBusy
	KindNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:         "Unknown",
	KindMissingFile:     "MissingFile",
	KindUnsupportedType: "UnsupportedType",
	KindFileTooLarge:    "FileTooLarge",
	KindAnalysisFailed:  "AnalysisFailed",
	KindStoreCorrupt:    "StoreCorrupt",
	KindBusy:            "Busy",
	KindNotFound:        "NotFound",
}

// 每种错误对应的用户可读消息
var kindMessages = map[Kind]string{
	KindUnknown:         "Something went wrong. Please try again.",
	KindMissingFile:     "Please upload your M-Pesa statement (.pdf or .csv).",
	KindUnsupportedType: "Unsupported file type — only PDF and CSV allowed.",
	KindFileTooLarge:    "File exceeds 5MB limit. Please upload a smaller file.",
	KindAnalysisFailed:  "Upload failed. Please try again or contact support.",
	KindStoreCorrupt:    "Saved analysis history could not be read.",
	KindBusy:            "An analysis is already in progress.",
	KindNotFound:        "Analysis record not found.",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Message 返回该类型的默认消息
func (k Kind) Message() string {
	return kindMessages[k]
}

// Error 带类型的业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Message()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按类型匹配，errors.Is(err, errs.ErrFileTooLarge) 对任意 FileTooLarge 错误成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage 返回可以直接展示给用户的消息（不含内部原因）
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Message()
}

var (
	ErrMissingFile     = &Error{Kind: KindMissingFile}
	ErrUnsupportedType = &Error{Kind: KindUnsupportedType}
	ErrFileTooLarge    = &Error{Kind: KindFileTooLarge}
	ErrAnalysisFailed  = &Error{Kind: KindAnalysisFailed}
	ErrStoreCorrupt    = &Error{Kind: KindStoreCorrupt}
	ErrBusy            = &Error{Kind: KindBusy}
	ErrNotFound        = &Error{Kind: KindNotFound}
)

// New 创建指定类型的错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 用指定类型包装底层错误
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf 提取错误链中的类型，非业务错误返回 KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage 提取错误链中的用户消息
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return KindUnknown.Message()
}
