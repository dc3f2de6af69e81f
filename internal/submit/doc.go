// Package submit accepts job requests.
//
// Every request is validated before anything is written: the asset must
// exist, overlay sources must resolve, and the transform must build. Only then
// is a pending job created and its work unit enqueued, so a rejected request
// leaves no job behind. Status and listing queries read the store directly.
package submit
