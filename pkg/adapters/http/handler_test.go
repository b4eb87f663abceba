// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leseb/docchat-gw/pkg/core/api"
	"github.com/leseb/docchat-gw/pkg/core/prompt"
	"github.com/leseb/docchat-gw/pkg/core/services"
	"github.com/leseb/docchat-gw/pkg/filestore"
	filestoremem "github.com/leseb/docchat-gw/pkg/filestore/memory"
	"github.com/leseb/docchat-gw/pkg/observability/logging"
	"github.com/leseb/docchat-gw/pkg/splitter"
	storagemem "github.com/leseb/docchat-gw/pkg/storage/memory"
	"github.com/leseb/docchat-gw/pkg/usage"
	"github.com/leseb/docchat-gw/pkg/vectorstore"
)

const (
	testAPIKey = "test-key"
	testPrefix = "chat-with-your-document-workspace:"
)

type testEnv struct {
	handler *Handler
	store   *storagemem.Store
	files   *filestoremem.Store
	backend *vectorstore.MemoryBackend
	counter *usage.MemoryCounter
}

func newTestEnv(t *testing.T, model api.ChatModel) *testEnv {
	t.Helper()

	sp, err := splitter.New("character", "\n", 800, 300)
	if err != nil {
		t.Fatalf("splitter.New: %v", err)
	}
	tmpl, err := prompt.Parse("Q: {query} C: {context} H: {chat_history}")
	if err != nil {
		t.Fatalf("prompt.Parse: %v", err)
	}

	env := &testEnv{
		store:   storagemem.New(),
		files:   filestoremem.New(),
		backend: vectorstore.NewMemoryBackend(),
		counter: usage.NewMemoryCounter(usage.DefaultWindow),
	}
	embedder := api.NewHashEmbeddingClient(64)
	logger := logging.Discard()

	ingest := services.NewIngestService(nil, sp, embedder, env.backend, services.IngestConfig{
		IndexName:       "chat-with-document",
		NamespacePrefix: testPrefix,
		ChunkSize:       800,
	}, logger)
	chat := services.NewChatService(model, embedder, env.backend, tmpl, 8, logger)
	usageSvc := services.NewUsageService(env.store, env.counter)

	env.handler = New(logger, ingest, chat, usageSvc, env.store, env.files, Options{
		APIKey:         testAPIKey,
		MaxUploadBytes: 1 << 20,
	})
	return env
}

// do sends a request through the handler with the test API key and, when
// user is set, the X-User-ID header.
func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(headerAPIKey, testAPIKey)
	if user != "" {
		req.Header.Set(headerUserID, user)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// upload posts a multipart document as user.
func (e *testEnv) upload(t *testing.T, user, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(headerAPIKey, testAPIKey)
	req.Header.Set(headerUserID, user)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// minimalPDF builds a one-page PDF that draws text in Helvetica.
func minimalPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody[map[string]string](t, rec); got["status"] != "ok" {
		t.Errorf("body = %v", got)
	}
}

func TestOpenAPI(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	doc := decodeBody[map[string]any](t, rec)
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		t.Fatalf("paths missing: %v", doc)
	}
	for _, p := range []string{"/add-record", "/get-response", "/v1/documents", "/v1/files", "/v1/chats/response"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("path %s not documented", p)
		}
	}
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		key        string
		user       string
		path       string
		wantStatus int
	}{
		{"missing key", testAPIKey, "", "", "/add-record", http.StatusForbidden},
		{"wrong key", testAPIKey, "nope", "", "/add-record", http.StatusForbidden},
		{"no key configured", "", "", "", "/add-record", http.StatusForbidden},
		{"no key configured rejects guesses", "", "anything", "", "/add-record", http.StatusForbidden},
		{"missing user", testAPIKey, testAPIKey, "", "/v1/usage", http.StatusUnauthorized},
		{"valid", testAPIKey, testAPIKey, "user_1", "/v1/usage", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, api.NewMockChatModel())
			env.handler.opts.APIKey = tt.configured

			method := http.MethodPost
			if strings.HasPrefix(tt.path, "/v1/") {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, tt.path, strings.NewReader("{}"))
			if tt.key != "" {
				req.Header.Set(headerAPIKey, tt.key)
			}
			if tt.user != "" {
				req.Header.Set(headerUserID, tt.user)
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusForbidden {
				if got := decodeBody[map[string]string](t, rec); got["detail"] != "Invalid API key" {
					t.Errorf("body = %v", got)
				}
			}
		})
	}
}

func serveText(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/doc.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAddRecordThenGetResponse(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())
	srv := serveText(t, "The capital of France is Paris.\nThe Seine flows through it.")

	rec := env.do(t, http.MethodPost, "/add-record", "", AddRecordRequest{
		DocumentURL: srv.URL + "/doc.txt",
		UserID:      "user_1",
		DocumentID:  "doc_1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add-record status = %d: %s", rec.Code, rec.Body.String())
	}
	added := decodeBody[map[string]string](t, rec)
	if added["namespace"] != testPrefix+"doc_1" || added["indexName"] != "chat-with-document" ||
		added["userId"] != "user_1" || added["documentId"] != "doc_1" {
		t.Errorf("add-record body = %v", added)
	}

	rec = env.do(t, http.MethodPost, "/get-response", "", GetResponseRequest{
		Query:       "What is the capital?",
		Namespace:   testPrefix + "doc_1",
		ChatHistory: []string{"User: hi", "AI: hello"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("get-response status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"Mock response to:", "capital?", "Paris.", "hello"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream %q missing %q", body, want)
		}
	}
}

func TestAddRecord_Errors(t *testing.T) {
	srv := serveText(t, "hello")

	tests := []struct {
		name       string
		req        AddRecordRequest
		wantStatus int
		wantMsg    string
	}{
		{"missing fields", AddRecordRequest{UserID: "user_1"}, http.StatusBadRequest, "documentUrl, documentId"},
		{"download fails", AddRecordRequest{DocumentURL: srv.URL + "/missing.txt", UserID: "u", DocumentID: "d"}, http.StatusBadGateway, "fetch failed"},
		{"bad url", AddRecordRequest{DocumentURL: "ftp://example.com/x", UserID: "u", DocumentID: "d"}, http.StatusBadGateway, "invalid document URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, api.NewMockChatModel())
			rec := env.do(t, http.MethodPost, "/add-record", "", tt.req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("body %q missing %q", rec.Body.String(), tt.wantMsg)
			}
		})
	}
}

func TestGetResponse_UnknownNamespace(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())

	rec := env.do(t, http.MethodPost, "/get-response", "", GetResponseRequest{
		Query:     "anything",
		Namespace: testPrefix + "nope",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody[map[string]string](t, rec); got["message"] != "namespace not found" {
		t.Errorf("body = %v", got)
	}
}

func TestGetResponse_Validation(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())

	rec := env.do(t, http.MethodPost, "/get-response", "", GetResponseRequest{Query: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetResponse_StreamError(t *testing.T) {
	env := newTestEnv(t, &api.MockChatModel{Err: errors.New("upstream exploded")})

	rec := env.do(t, http.MethodPost, "/get-response", "", GetResponseRequest{Query: "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.HasSuffix(body, "Error: upstream exploded") {
		t.Errorf("stream = %q", body)
	}
}

func TestGetResponse_NonStreamingUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"prompt too long"}}`)
	}))
	defer upstream.Close()

	model := api.NewOpenAIChatModel(upstream.URL+"/v1/", "k", api.ChatModelConfig{Model: "m", DisableStreaming: true})
	env := newTestEnv(t, model)

	rec := env.do(t, http.MethodPost, "/get-response", "", GetResponseRequest{Query: "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); !strings.HasPrefix(body, "Error: chat completion failed") {
		t.Errorf("stream = %q", body)
	}
}

func TestDocuments_Lifecycle(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())
	ctx := context.Background()
	pdf := minimalPDF("Quarterly revenue grew nine percent")

	rec := env.upload(t, "user_1", "report.pdf", pdf)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	doc := decodeBody[map[string]any](t, rec)
	id, _ := doc["id"].(string)
	if id == "" || doc["name"] != "report.pdf" || doc["type"] != "application/pdf" || doc["isActive"] != true {
		t.Fatalf("upload body = %v", doc)
	}
	if doc["url"] != "/v1/documents/"+id+"/content" {
		t.Errorf("url = %v", doc["url"])
	}
	if doc["status"] != "processed" {
		t.Errorf("status = %v", doc["status"])
	}
	ns, _ := doc["namespace"].(string)
	if ok, _ := env.backend.HasNamespace(ctx, ns); !ok {
		t.Fatalf("namespace %q not created", ns)
	}

	// Free plan allows one document.
	rec = env.upload(t, "user_1", "second.pdf", pdf)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("second upload status = %d", rec.Code)
	}
	limit := decodeBody[map[string]any](t, rec)
	if limit["error"] != "Upload limit exceeded" || limit["currentCount"] != float64(1) || limit["maxAllowed"] != float64(1) {
		t.Errorf("limit body = %v", limit)
	}

	rec = env.do(t, http.MethodGet, "/v1/documents", "user_1", nil)
	list := decodeBody[struct {
		Documents []map[string]any `json:"documents"`
		Total     int              `json:"total"`
	}](t, rec)
	if list.Total != 1 || len(list.Documents) != 1 || list.Documents[0]["id"] != id {
		t.Errorf("list = %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/v1/documents/"+id, "user_1", nil)
	got := decodeBody[struct {
		Status string `json:"status"`
		File   struct {
			Filename string `json:"filename"`
			Bytes    int    `json:"bytes"`
			MimeType string `json:"mimeType"`
		} `json:"file"`
	}](t, rec)
	if got.Status != "processed" || got.File.Filename != "report.pdf" || got.File.Bytes != len(pdf) || got.File.MimeType != "application/pdf" {
		t.Errorf("get document = %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/v1/documents/"+id+"/content", "user_1", nil)
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), pdf) {
		t.Errorf("content status = %d, %d bytes", rec.Code, rec.Body.Len())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "report.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	// Chatting with the document retrieves its text.
	rec = env.do(t, http.MethodPost, "/get-response", "", GetResponseRequest{Query: "revenue?", Namespace: ns})
	if !strings.Contains(rec.Body.String(), "Quarterly") {
		t.Errorf("stream %q lacks document text", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v1/documents/"+id, "user_2", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign get status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/v1/documents/"+id, "user_1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	if ok, _ := env.backend.HasNamespace(ctx, ns); ok {
		t.Error("namespace survived delete")
	}
	if _, err := env.files.GetFile(ctx, id); err == nil {
		t.Error("file survived delete")
	}

	rec = env.do(t, http.MethodGet, "/v1/documents", "user_1", nil)
	empty := decodeBody[map[string]any](t, rec)
	if empty["message"] != "No documents found" {
		t.Errorf("empty list = %v", empty)
	}
}

func TestFiles_ListPaginated(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, owner := range []string{"user_1", "user_1", "user_2", "user_1"} {
		err := env.files.CreateFile(ctx, &filestore.File{
			ID:        fmt.Sprintf("doc_%d", i),
			Filename:  fmt.Sprintf("f%d.pdf", i),
			OwnerID:   owner,
			MimeType:  "application/pdf",
			Bytes:     3,
			Content:   []byte("pdf"),
			Status:    filestore.StatusUploaded,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	type page struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		FirstID string `json:"first_id"`
		LastID  string `json:"last_id"`
		HasMore bool   `json:"has_more"`
	}

	rec := env.do(t, http.MethodGet, "/v1/files?order=asc&limit=2", "user_1", nil)
	first := decodeBody[page](t, rec)
	if len(first.Data) != 2 || first.Data[0].ID != "doc_0" || first.LastID != "doc_1" || !first.HasMore {
		t.Fatalf("first page = %+v", first)
	}

	rec = env.do(t, http.MethodGet, "/v1/files?order=asc&limit=2&after="+first.LastID, "user_1", nil)
	second := decodeBody[page](t, rec)
	if len(second.Data) != 1 || second.Data[0].ID != "doc_3" || second.HasMore {
		t.Errorf("second page = %+v", second)
	}

	rec = env.do(t, http.MethodGet, "/v1/files", "user_1", nil)
	desc := decodeBody[page](t, rec)
	if len(desc.Data) != 3 || desc.FirstID != "doc_3" {
		t.Errorf("default order page = %+v", desc)
	}

	rec = env.do(t, http.MethodGet, "/v1/files?order=sideways", "user_1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad order status = %d", rec.Code)
	}
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		wantMsg  string
	}{
		{"not a pdf", "notes.txt", []byte("plain text"), "File type not allowed"},
		{"too large", "big.pdf", append([]byte("%PDF-1.4\n"), make([]byte, 1<<20+1024)...), "File too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, api.NewMockChatModel())
			rec := env.upload(t, "user_1", tt.filename, tt.content)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("body %q missing %q", rec.Body.String(), tt.wantMsg)
			}
		})
	}
}

func TestUpload_IngestFailureCleansUp(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())
	ctx := context.Background()

	rec := env.upload(t, "user_1", "broken.pdf", []byte("%PDF-1.4 not really a pdf"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Vector DB upload failed") {
		t.Errorf("body = %s", rec.Body.String())
	}

	docs, err := env.store.ListDocuments(ctx, "user_1")
	if err != nil || len(docs) != 0 {
		t.Errorf("documents after failure = %v, %v", docs, err)
	}
	files, _, err := env.files.ListFilesPaginated(ctx, "", "", 100, "desc", "user_1")
	if err != nil || len(files) != 0 {
		t.Errorf("files after failure = %v, %v", files, err)
	}
}

func TestChats_Flow(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())

	rec := env.do(t, http.MethodPost, "/v1/chats/messages", "user_1", CreateMessageRequest{Text: "Summarise the report"})
	if rec.Code != http.StatusOK {
		t.Fatalf("create message status = %d: %s", rec.Code, rec.Body.String())
	}
	msg := decodeBody[map[string]any](t, rec)
	chatID, _ := msg["chatId"].(string)
	if chatID == "" || msg["isUser"] != true || msg["text"] != "Summarise the report" {
		t.Fatalf("message = %v", msg)
	}

	rec = env.do(t, http.MethodGet, "/v1/chats", "user_1", nil)
	chats := decodeBody[[]map[string]any](t, rec)
	if len(chats) != 1 || chats[0]["id"] != chatID || chats[0]["title"] != "Summarise the report" {
		t.Errorf("chats = %v", chats)
	}

	rec = env.do(t, http.MethodPost, "/v1/chats/response", "user_1", ChatResponseRequest{Query: "Summarise the report", ChatID: chatID})
	if rec.Code != http.StatusOK {
		t.Fatalf("response status = %d: %s", rec.Code, rec.Body.String())
	}
	answer := rec.Body.String()
	if !strings.Contains(answer, "User: Summarise the report") {
		t.Errorf("answer %q lacks chat history", answer)
	}

	rec = env.do(t, http.MethodGet, "/v1/chats/messages?chatId="+chatID, "user_1", nil)
	msgs := decodeBody[[]map[string]any](t, rec)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", msgs)
	}
	if msgs[1]["isUser"] != false || msgs[1]["text"] != answer {
		t.Errorf("stored answer = %v, want %q", msgs[1], answer)
	}

	// Only stored user messages count against the quota.
	rec = env.do(t, http.MethodGet, "/v1/usage", "user_1", nil)
	stats := decodeBody[services.UsageStats](t, rec)
	if stats.Messages.Current != 1 || stats.Messages.Max != 20 || !stats.Messages.CanSend {
		t.Errorf("usage = %+v", stats)
	}

	rec = env.do(t, http.MethodGet, "/v1/chats/messages?chatId="+chatID, "user_2", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign chat status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/v1/chats/messages", "user_2", CreateMessageRequest{Text: "hi", ChatID: chatID})
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign append status = %d", rec.Code)
	}
}

func TestChats_Validation(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"empty text", http.MethodPost, "/v1/chats/messages", CreateMessageRequest{Text: " "}},
		{"list without chatId", http.MethodGet, "/v1/chats/messages", nil},
		{"response without chatId", http.MethodPost, "/v1/chats/response", ChatResponseRequest{Query: "q"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, "user_1", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestChats_MessageLimit(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if _, err := env.counter.Incr(ctx, "messages:user_1"); err != nil {
			t.Fatal(err)
		}
	}

	for _, path := range []string{"/v1/chats/messages", "/v1/chats/response"} {
		rec := env.do(t, http.MethodPost, path, "user_1", map[string]string{"text": "hi", "query": "hi", "chatId": "chat_x"})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		body := decodeBody[map[string]any](t, rec)
		if body["error"] != "Message limit exceeded" || body["maxAllowed"] != float64(20) {
			t.Errorf("%s body = %v", path, body)
		}
	}
}

func TestUsers(t *testing.T) {
	env := newTestEnv(t, api.NewMockChatModel())

	rec := env.do(t, http.MethodGet, "/v1/users/user_1", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/v1/users/user_1", "", map[string]string{"plan": "GOLD"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad plan status = %d", rec.Code)
	}

	end := time.Now().Add(24 * time.Hour).UTC()
	rec = env.do(t, http.MethodPut, "/v1/users/user_1", "", UpdateUserRequest{
		Email:              "ada@example.com",
		Plan:               "premium",
		SubscriptionStatus: "active",
		CurrentPeriodEnd:   &end,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v1/users/user_1", "", nil)
	user := decodeBody[map[string]any](t, rec)
	if user["plan"] != "PREMIUM" || user["subscriptionStatus"] != "ACTIVE" || user["email"] != "ada@example.com" {
		t.Errorf("user = %v", user)
	}

	rec = env.do(t, http.MethodGet, "/v1/usage", "user_1", nil)
	stats := decodeBody[services.UsageStats](t, rec)
	if !stats.IsPremium || stats.Documents.Max != services.Unlimited || !stats.Documents.CanUpload {
		t.Errorf("usage = %+v", stats)
	}
}
