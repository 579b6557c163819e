package reporting

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	alloggiatiNamespace = "AlloggiatiService"
	soapContentType     = "application/soap+xml; charset=utf-8"
)

// Outcome is the esito block every service operation returns.
type Outcome struct {
	OK        bool   `xml:"esito"`
	ErrorCode string `xml:"ErroreCod"`
	ErrorDesc string `xml:"ErroreDes"`
	Detail    string `xml:"ErroreDettaglio"`
}

func (o Outcome) err(op string) error {
	if o.OK {
		return nil
	}
	return &ServiceError{Op: op, Code: o.ErrorCode, Description: o.ErrorDesc, Detail: o.Detail}
}

// ServiceError is a negative esito from the police service.
type ServiceError struct {
	Op          string
	Code        string
	Description string
	Detail      string
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("alloggiati %s: %s %s", e.Op, e.Code, e.Description)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return strings.TrimSpace(msg)
}

// AccessToken is a service session token.
type AccessToken struct {
	Issued  time.Time
	Expires time.Time
	Token   string
}

// SendResult reports how many records were accepted and why the others were not.
type SendResult struct {
	Valid   int
	Details []Outcome
}

// AlloggiatiClient speaks SOAP 1.2 to the Alloggiati Web service.
type AlloggiatiClient struct {
	url  string
	http *http.Client
}

// NewAlloggiatiClient returns a client for the service at url.
func NewAlloggiatiClient(url string, httpClient *http.Client) *AlloggiatiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AlloggiatiClient{url: url, http: httpClient}
}

type generateTokenRequest struct {
	XMLName  xml.Name `xml:"GenerateToken"`
	Xmlns    string   `xml:"xmlns,attr"`
	Utente   string   `xml:"Utente"`
	Password string   `xml:"Password"`
	WsKey    string   `xml:"WsKey"`
}

type testRequest struct {
	XMLName xml.Name `xml:"Authentication_Test"`
	Xmlns   string   `xml:"xmlns,attr"`
	Utente  string   `xml:"Utente"`
	Token   string   `xml:"token"`
}

type sendRequest struct {
	XMLName  xml.Name `xml:"Send"`
	Xmlns    string   `xml:"xmlns,attr"`
	Utente   string   `xml:"Utente"`
	Token    string   `xml:"token"`
	Schedine []string `xml:"ElencoSchedine>string"`
}

type envelope struct {
	XMLName xml.Name `xml:"soap12:Envelope"`
	Soap    string   `xml:"xmlns:soap12,attr"`
	Body    struct {
		Content any
	} `xml:"soap12:Body"`
}

type responseEnvelope struct {
	Body struct {
		Inner []byte `xml:",innerxml"`
		Fault *struct {
			Reason string `xml:"Reason>Text"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

type generateTokenResponse struct {
	Result struct {
		Issued  string `xml:"issued"`
		Expires string `xml:"expires"`
		Token   string `xml:"token"`
	} `xml:"GenerateTokenResult"`
	Outcome Outcome `xml:"result"`
}

type testResponse struct {
	Outcome Outcome `xml:"Authentication_TestResult"`
}

type sendResponse struct {
	Outcome Outcome `xml:"SendResult"`
	Result  struct {
		Valid   int       `xml:"SchedineValide"`
		Details []Outcome `xml:"Dettaglio>EsitoOperazioneServizio"`
	} `xml:"result"`
}

// GenerateToken opens a session for the structure account.
func (c *AlloggiatiClient) GenerateToken(ctx context.Context, user, password, wsKey string) (*AccessToken, error) {
	var resp generateTokenResponse
	req := generateTokenRequest{Xmlns: alloggiatiNamespace, Utente: user, Password: password, WsKey: wsKey}
	if err := c.call(ctx, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Outcome.err("GenerateToken"); err != nil {
		return nil, err
	}
	if resp.Result.Token == "" {
		return nil, errors.New("alloggiati GenerateToken: empty token")
	}
	tok := &AccessToken{Token: resp.Result.Token}
	tok.Issued, _ = parseServiceTime(resp.Result.Issued)
	tok.Expires, _ = parseServiceTime(resp.Result.Expires)
	return tok, nil
}

// Test checks that a token is still accepted.
func (c *AlloggiatiClient) Test(ctx context.Context, user, token string) error {
	var resp testResponse
	if err := c.call(ctx, testRequest{Xmlns: alloggiatiNamespace, Utente: user, Token: token}, &resp); err != nil {
		return err
	}
	return resp.Outcome.err("Authentication_Test")
}

// Send submits the records. A negative overall esito is returned as a
// *ServiceError together with the per-record details.
func (c *AlloggiatiClient) Send(ctx context.Context, user, token string, lines []string) (*SendResult, error) {
	var resp sendResponse
	req := sendRequest{Xmlns: alloggiatiNamespace, Utente: user, Token: token, Schedine: lines}
	if err := c.call(ctx, req, &resp); err != nil {
		return nil, err
	}
	out := &SendResult{Valid: resp.Result.Valid, Details: resp.Result.Details}
	return out, resp.Outcome.err("Send")
}

func (c *AlloggiatiClient) call(ctx context.Context, body any, out any) error {
	env := envelope{Soap: "http://www.w3.org/2003/05/soap-envelope"}
	env.Body.Content = body

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(env); err != nil {
		return fmt.Errorf("encode soap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", soapContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("alloggiati request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read alloggiati response: %w", err)
	}

	var renv responseEnvelope
	if err := xml.Unmarshal(raw, &renv); err != nil {
		return fmt.Errorf("alloggiati returned %d: %w", resp.StatusCode, err)
	}
	if renv.Body.Fault != nil {
		return fmt.Errorf("alloggiati fault: %s", strings.TrimSpace(renv.Body.Fault.Reason))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alloggiati returned %d", resp.StatusCode)
	}
	if err := xml.Unmarshal(renv.Body.Inner, out); err != nil {
		return fmt.Errorf("decode alloggiati response: %w", err)
	}
	return nil
}

func parseServiceTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.9999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
