/*
Package wingman is a client for a Copilot-style chat-completion API that
authenticates through the OAuth device-authorization grant and streams
responses as Server-Sent Events.

The package is organized around three concerns:

  - Credentials: a long-lived identity token, obtained once through the
    device flow, is exchanged on demand for short-lived access tokens that
    authenticate every API call
  - Dispatch: chat completions, model listing, embeddings and usage calls
    share one header scheme and one error taxonomy
  - Streaming: streamed responses decode lazily into typed chunks that can
    be consumed one at a time

# Basic Usage

Create a client, log in once, then issue calls. The client refreshes and
persists the short-lived token transparently:

	client, err := wingman.New()
	if err != nil {
		// Handle error
	}

	resp, err := client.ChatCompletion(ctx, wingman.ChatRequest{
		Model:    "gpt-4o",
		Messages: []wingman.Message{wingman.Text("user", "Explain io.Reader")},
	})

Streaming hands back a decoder over the open response body:

	dec, err := client.StreamChatCompletion(ctx, req)
	if err != nil {
		// Handle error
	}
	defer dec.Close()

	for chunk := range dec.All() {
		switch c := chunk.(type) {
		case stream.ContentDelta:
			fmt.Print(c.Content)
		case stream.Done:
			return
		}
	}

# Architecture

1. Token lifecycle (auth.TokenSource)
  - Decides validity with a configurable expiry skew
  - Refreshes synchronously through the exchange endpoint
  - Persists every successful refresh; concurrent callers share one
    in-flight refresh

2. Device authorization (auth.Authorizer)
  - Requests a device session and polls for the grant
  - Honors the provider's pacing, including slow_down backoffs
  - Enforces the session TTL locally

3. Stream decoding (stream.Decoder)
  - Reassembles event frames across arbitrary byte-chunk boundaries
  - Drops malformed payloads without aborting the stream
  - Ends at the [DONE] sentinel or at end of input

The credential file is the cross-process source of truth. There is no
cross-process locking: concurrent processes refreshing the same stored
credential race and the last writer wins.
*/
package wingman
