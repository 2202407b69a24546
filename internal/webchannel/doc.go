// Package webchannel carries the troubleshooting channel protocol between a
// support page and the browser chrome.
//
// A request is a WebChannelMessageToChrome event whose detail is a JSON
// string of {id, message}. The chrome answers with a
// WebChannelMessageToContent event whose detail carries the same id and a
// non-empty message. Transports move events either in memory (Hub) or over a
// websocket connection to the page (WSTransport).
package webchannel
