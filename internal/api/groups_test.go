package api

import (
	"context"
	"net/http"
	"testing"
)

// createGroup is a helper returning the new group's id.
func createGroup(t *testing.T, s *testServer, access, name string) string {
	t.Helper()

	resp, body := s.do(t, http.MethodPost, "/api/v1/groups", access, map[string]any{
		"name": name,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group: status %d (%v)", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("create group returned no id: %v", body)
	}
	return id
}

// inviteAndAccept walks userID through the invite flow into groupID.
func inviteAndAccept(t *testing.T, s *testServer, ownerAccess, memberAccess, groupID, userID string) {
	t.Helper()

	resp, body := s.do(t, http.MethodPost, "/api/v1/groups/"+groupID+"/members", ownerAccess, map[string]any{
		"user_id": userID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("invite: status %d (%v)", resp.StatusCode, body)
	}

	resp, body = s.do(t, http.MethodPost, "/api/v1/groups/"+groupID+"/invite", memberAccess, map[string]any{
		"action": "accept",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept invite: status %d (%v)", resp.StatusCode, body)
	}
}

func TestCreateGroup_CallerBecomesOwner(t *testing.T) {
	s := newTestServer(t)
	userID, access, _ := s.registerAndLogin(t, "alice")
	groupID := createGroup(t, s, access, "general")

	m, err := s.groups.GetMembership(context.Background(), userID, groupID)
	if err != nil {
		t.Fatalf("GetMembership() error = %v", err)
	}
	if string(m.Role) != "owner" {
		t.Errorf("creator role = %s, want owner", m.Role)
	}
}

func TestGetGroup_MembersOnly(t *testing.T) {
	s := newTestServer(t)
	_, aliceAccess, _ := s.registerAndLogin(t, "alice")
	_, bobAccess, _ := s.registerAndLogin(t, "bob")
	groupID := createGroup(t, s, aliceAccess, "general")

	resp, _ := s.do(t, http.MethodGet, "/api/v1/groups/"+groupID, aliceAccess, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("member get: status %d, want 200", resp.StatusCode)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/v1/groups/"+groupID, bobAccess, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-member get: status %d, want 403", resp.StatusCode)
	}
}

func TestInviteFlow(t *testing.T) {
	s := newTestServer(t)
	_, aliceAccess, _ := s.registerAndLogin(t, "alice")
	bobID, bobAccess, _ := s.registerAndLogin(t, "bob")
	groupID := createGroup(t, s, aliceAccess, "general")

	// Invite lands as pending.
	resp, body := s.do(t, http.MethodPost, "/api/v1/groups/"+groupID+"/members", aliceAccess, map[string]any{
		"user_id": bobID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("invite: status %d (%v)", resp.StatusCode, body)
	}
	if body["status"] != "pending" {
		t.Errorf("invite status = %v, want pending", body["status"])
	}

	// Double invite conflicts.
	resp, _ = s.do(t, http.MethodPost, "/api/v1/groups/"+groupID+"/members", aliceAccess, map[string]any{
		"user_id": bobID,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("double invite: status %d, want 409", resp.StatusCode)
	}

	// Bob accepts; second accept conflicts.
	resp, _ = s.do(t, http.MethodPost, "/api/v1/groups/"+groupID+"/invite", bobAccess, map[string]any{
		"action": "accept",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept: status %d", resp.StatusCode)
	}
	resp, _ = s.do(t, http.MethodPost, "/api/v1/groups/"+groupID+"/invite", bobAccess, map[string]any{
		"action": "accept",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second accept: status %d, want 409", resp.StatusCode)
	}

	// Bob's group list now includes it.
	resp, body = s.do(t, http.MethodGet, "/api/v1/groups", bobAccess, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list groups: status %d", resp.StatusCode)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("bob group count = %v, want 1", body["count"])
	}
}

func TestInvite_MembersCannotInvite(t *testing.T) {
	s := newTestServer(t)
	_, aliceAccess, _ := s.registerAndLogin(t, "alice")
	bobID, bobAccess, _ := s.registerAndLogin(t, "bob")
	carolID, _, _ := s.registerAndLogin(t, "carol")
	groupID := createGroup(t, s, aliceAccess, "general")
	inviteAndAccept(t, s, aliceAccess, bobAccess, groupID, bobID)

	resp, _ := s.do(t, http.MethodPost, "/api/v1/groups/"+groupID+"/members", bobAccess, map[string]any{
		"user_id": carolID,
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("member invite: status %d, want 403", resp.StatusCode)
	}
}

func TestLeaveGroup(t *testing.T) {
	s := newTestServer(t)
	_, aliceAccess, _ := s.registerAndLogin(t, "alice")
	bobID, bobAccess, _ := s.registerAndLogin(t, "bob")
	groupID := createGroup(t, s, aliceAccess, "general")
	inviteAndAccept(t, s, aliceAccess, bobAccess, groupID, bobID)

	// Owner cannot leave.
	resp, _ := s.do(t, http.MethodPost, "/api/v1/groups/"+groupID+"/leave", aliceAccess, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("owner leave: status %d, want 403", resp.StatusCode)
	}

	// Member can.
	resp, _ = s.do(t, http.MethodPost, "/api/v1/groups/"+groupID+"/leave", bobAccess, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("member leave: status %d, want 200", resp.StatusCode)
	}
}

func TestRemoveMember_Permissions(t *testing.T) {
	s := newTestServer(t)
	aliceID, aliceAccess, _ := s.registerAndLogin(t, "alice")
	bobID, bobAccess, _ := s.registerAndLogin(t, "bob")
	carolID, carolAccess, _ := s.registerAndLogin(t, "carol")
	groupID := createGroup(t, s, aliceAccess, "general")
	inviteAndAccept(t, s, aliceAccess, bobAccess, groupID, bobID)
	inviteAndAccept(t, s, aliceAccess, carolAccess, groupID, carolID)

	// Promote bob to group admin.
	resp, _ := s.do(t, http.MethodPatch, "/api/v1/groups/"+groupID+"/members/"+bobID, aliceAccess, map[string]any{
		"role": "admin",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("promote: status %d", resp.StatusCode)
	}

	// Plain member cannot remove anyone.
	resp, _ = s.do(t, http.MethodDelete, "/api/v1/groups/"+groupID+"/members/"+bobID, carolAccess, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("member removes admin: status %d, want 403", resp.StatusCode)
	}

	// Group admin cannot remove the owner.
	resp, _ = s.do(t, http.MethodDelete, "/api/v1/groups/"+groupID+"/members/"+aliceID, bobAccess, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("admin removes owner: status %d, want 403", resp.StatusCode)
	}

	// Group admin removes a plain member.
	resp, _ = s.do(t, http.MethodDelete, "/api/v1/groups/"+groupID+"/members/"+carolID, bobAccess, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("admin removes member: status %d, want 200", resp.StatusCode)
	}

	// Owner removes the admin.
	resp, _ = s.do(t, http.MethodDelete, "/api/v1/groups/"+groupID+"/members/"+bobID, aliceAccess, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("owner removes admin: status %d, want 200", resp.StatusCode)
	}
}

func TestUpdateMemberRole_OwnershipTransfer(t *testing.T) {
	s := newTestServer(t)
	aliceID, aliceAccess, _ := s.registerAndLogin(t, "alice")
	bobID, bobAccess, _ := s.registerAndLogin(t, "bob")
	groupID := createGroup(t, s, aliceAccess, "general")
	inviteAndAccept(t, s, aliceAccess, bobAccess, groupID, bobID)

	// Non-owner cannot update roles.
	resp, _ := s.do(t, http.MethodPatch, "/api/v1/groups/"+groupID+"/members/"+aliceID, bobAccess, map[string]any{
		"role": "admin",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-owner role update: status %d, want 403", resp.StatusCode)
	}

	// Transfer ownership to bob.
	resp, _ = s.do(t, http.MethodPatch, "/api/v1/groups/"+groupID+"/members/"+bobID, aliceAccess, map[string]any{
		"role": "owner",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transfer: status %d", resp.StatusCode)
	}

	bob, err := s.groups.GetMembership(context.Background(), bobID, groupID)
	if err != nil || string(bob.Role) != "owner" {
		t.Errorf("bob role = %v (err %v), want owner", bob, err)
	}
	alice, err := s.groups.GetMembership(context.Background(), aliceID, groupID)
	if err != nil || string(alice.Role) != "admin" {
		t.Errorf("alice role = %v (err %v), want admin", alice, err)
	}
}

func TestDeleteGroup_OwnerOrPlatformAdmin(t *testing.T) {
	s := newTestServer(t)
	_, aliceAccess, _ := s.registerAndLogin(t, "alice")
	bobID, bobAccess, _ := s.registerAndLogin(t, "bob")
	groupID := createGroup(t, s, aliceAccess, "general")
	inviteAndAccept(t, s, aliceAccess, bobAccess, groupID, bobID)

	// Non-owner member cannot delete.
	resp, _ := s.do(t, http.MethodDelete, "/api/v1/groups/"+groupID, bobAccess, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("member delete: status %d, want 403", resp.StatusCode)
	}

	// Owner can.
	resp, _ = s.do(t, http.MethodDelete, "/api/v1/groups/"+groupID, aliceAccess, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("owner delete: status %d, want 200", resp.StatusCode)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/v1/groups/"+groupID, aliceAccess, nil)
	if resp.StatusCode == http.StatusOK {
		t.Error("group still readable after delete")
	}
}
