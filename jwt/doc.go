// Package jwt issues and verifies the bearer tokens that tool API clients
// present. A token names its principal in the subject and lists the tool
// groups (ssh, sftp, tcp) it may call.
package jwt
