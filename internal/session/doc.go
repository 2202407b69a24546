// Package session persists a visitor's ShowFor selections between page
// views. Forms are stored in redis under showfor:session:<id>, where id is
// a uuid carried in a cookie, and can also travel in a URL fragment.
package session
