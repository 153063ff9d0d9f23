// Package toolapi exposes the Engine as JSON tool calls over HTTP.
//
// Every tool is a POST under /v1 taking and returning a JSON object. Byte
// payloads travel as base64 strings and timeouts as milliseconds.
//
//	POST /v1/ssh/connect     {host, port?, username, password?, privateKey?} -> {sessionId}
//	POST /v1/ssh/exec        {sessionId, command, timeout?}                  -> {stdout, stderr, exitCode}
//	POST /v1/ssh/disconnect  {sessionId}                                     -> {success}
//	POST /v1/sftp/list       {sessionId, path}                               -> {files}
//	POST /v1/sftp/download   {sessionId, remotePath}                         -> {data, encoding}
//	POST /v1/sftp/upload     {sessionId, remotePath, data}                   -> {success}
//	POST /v1/tcp/connect     {host, port, timeout?}                          -> {socketId}
//	POST /v1/tcp/send        {socketId, data}                                -> {success}
//	POST /v1/tcp/read        {socketId, timeout?}                            -> {data, encoding}
//	POST /v1/tcp/disconnect  {socketId}                                      -> {success}
//
// Failures return {"error": {"code", "message"}} with the status chosen by
// the error kind: validation 400, unknown or expired session 404, throttled
// 429, transport 502, timeout 504, anything else 500.
//
// When a token manager is configured each tool group (ssh, sftp, tcp)
// requires a bearer token carrying that scope.
package toolapi
