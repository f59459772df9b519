package registry

import (
	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

func (r *Registry) toManagementData() wire.ManagementData {
	md := wire.ManagementData{AdminToken: append([]byte(nil), r.adminToken...)}
	for _, a := range r.allowedUsers {
		md.AllowedUsers = append(md.AllowedUsers, a)
	}
	for _, u := range r.users {
		md.Users = append(md.Users, u.Clone())
	}
	for k, t := range r.authTokens {
		md.AuthTokens = append(md.AuthTokens, wire.DeviceToken{DeviceKey: []byte(k), Token: append([]byte(nil), t...)})
	}
	for k, t := range r.notificationTokens {
		md.NotificationTokens = append(md.NotificationTokens, wire.DeviceToken{DeviceKey: []byte(k), Token: append([]byte(nil), t...)})
	}
	for _, s := range r.topics {
		md.Topics = append(md.Topics, s)
	}
	for k, m := range r.mailbox {
		md.Mailboxes = append(md.Mailboxes, wire.MailboxEntry{DeviceKey: []byte(k), Mailbox: m.Clone()})
	}
	for k, m := range r.oldMailbox {
		md.OldMailboxes = append(md.OldMailboxes, wire.MailboxEntry{DeviceKey: []byte(k), Mailbox: m.Clone()})
	}
	return md
}

func (r *Registry) loadSnapshot(data []byte) error {
	var md wire.ManagementData
	if err := wire.Unmarshal(data, &md); err != nil {
		return apperr.Internal("decode snapshot", err)
	}
	r.adminToken = md.AdminToken
	for _, a := range md.AllowedUsers {
		r.allowedUsers[a.Name] = a
	}
	for _, u := range md.Users {
		r.users[string(u.IdentityKey)] = u
		for _, d := range u.Devices {
			r.deviceOwner[string(d.DeviceKey)] = string(u.IdentityKey)
		}
	}
	for _, t := range md.AuthTokens {
		r.authTokens[string(t.DeviceKey)] = t.Token
	}
	for _, t := range md.NotificationTokens {
		r.notificationTokens[string(t.DeviceKey)] = t.Token
	}
	for _, s := range md.Topics {
		r.topics[string(s.Info.TopicID)] = s
	}
	for _, m := range md.Mailboxes {
		r.mailbox[string(m.DeviceKey)] = m.Mailbox
	}
	for _, m := range md.OldMailboxes {
		r.oldMailbox[string(m.DeviceKey)] = m.Mailbox
	}
	return nil
}
