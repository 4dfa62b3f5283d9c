// Package twiml renders the telephony provider's XML response documents.
// Verb order is significant (the provider executes them top to bottom), so a
// response is an ordered verb list rather than a fixed struct.
package twiml

import (
	"bytes"
	"encoding/xml"
)

// Voice is the voice identifier used for all spoken replies.
const Voice = "alice"

type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Verbs         []any
}

type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type Message struct {
	XMLName xml.Name `xml:"Message"`
	Body    string   `xml:",chardata"`
}

func (r *Response) Say(text string) *Response {
	r.Verbs = append(r.Verbs, Say{Voice: Voice, Text: text})
	return r
}

func (r *Response) Hangup() *Response {
	r.Verbs = append(r.Verbs, Hangup{})
	return r
}

func (r *Response) Redirect(url string) *Response {
	r.Verbs = append(r.Verbs, Redirect{Method: "POST", URL: url})
	return r
}

func (r *Response) Message(body string) *Response {
	r.Verbs = append(r.Verbs, Message{Body: body})
	return r
}

// SpeechGather wraps spoken prompts in a speech-input Gather posting the next
// utterance to action.
func (r *Response) SpeechGather(action string, prompts ...string) *Response {
	g := Gather{
		Input:         "speech",
		Action:        action,
		Method:        "POST",
		Timeout:       5,
		SpeechTimeout: "auto",
	}
	for _, p := range prompts {
		g.Verbs = append(g.Verbs, Say{Voice: Voice, Text: p})
	}
	r.Verbs = append(r.Verbs, g)
	return r
}

// Render serializes the document with the XML declaration the provider
// expects. Marshal errors cannot occur for the verb types above, but are
// propagated anyway.
func Render(r *Response) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
