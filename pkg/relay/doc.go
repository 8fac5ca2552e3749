// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package relay implements the background-removal relay. It accepts a single
// image upload, forwards it to the remove.bg API with the server-held API key
// attached, and hands the resulting PNG back to the caller. Upstream failures
// are passed through with their status; everything else surfaces as a generic
// server error so no internal detail or credential reaches the client.
package relay
