package social

import (
	"context"
	"errors"
	"testing"
)

func TestGroupRepository_CreateGroup(t *testing.T) {
	db := testDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()

	owner := seedTestUser(t, db, "alice")

	group := &Group{Name: "book club"}
	if err := repo.CreateGroup(ctx, group, owner); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if group.ID == "" {
		t.Fatal("CreateGroup() should generate an ID")
	}

	got, err := repo.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup() error = %v", err)
	}
	if got.Name != "book club" {
		t.Errorf("Name = %q, want %q", got.Name, "book club")
	}

	// The creator holds the owner role from the same transaction.
	m, err := repo.GetMembership(ctx, owner, group.ID)
	if err != nil {
		t.Fatalf("GetMembership() error = %v", err)
	}
	if m.Role != GroupRoleOwner {
		t.Errorf("creator role = %q, want owner", m.Role)
	}
}

func TestGroupRepository_GetGroup_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewGroupRepository(db)

	if _, err := repo.GetGroup(context.Background(), "missing"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("GetGroup(missing) err = %v, want ErrGroupNotFound", err)
	}
}

func TestGroupRepository_Membership(t *testing.T) {
	db := testDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()

	owner := seedTestUser(t, db, "alice")
	bob := seedTestUser(t, db, "bob")

	group := &Group{Name: "g"}
	if err := repo.CreateGroup(ctx, group, owner); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	isMember, err := repo.IsMember(ctx, bob, group.ID)
	if err != nil {
		t.Fatalf("IsMember() error = %v", err)
	}
	if isMember {
		t.Error("bob should not be a member yet")
	}

	if err := repo.AddMember(ctx, &Membership{UserID: bob, GroupID: group.ID}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	// Second add is a conflict.
	err = repo.AddMember(ctx, &Membership{UserID: bob, GroupID: group.ID})
	if !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("duplicate AddMember() err = %v, want ErrAlreadyMember", err)
	}

	isMember, _ = repo.IsMember(ctx, bob, group.ID)
	if !isMember {
		t.Error("bob should be a member after AddMember")
	}

	members, err := repo.ListMembers(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(members) != 2 {
		t.Errorf("ListMembers() = %d, want 2", len(members))
	}

	if err := repo.RemoveMember(ctx, bob, group.ID); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	isMember, _ = repo.IsMember(ctx, bob, group.ID)
	if isMember {
		t.Error("bob should not be a member after removal")
	}
}

func TestGroupRepository_IsMember_IgnoresInviteStatus(t *testing.T) {
	db := testDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()

	owner := seedTestUser(t, db, "alice")
	bob := seedTestUser(t, db, "bob")

	group := &Group{Name: "g"}
	if err := repo.CreateGroup(ctx, group, owner); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	// A pending invitee already passes the membership check: row
	// existence is the uniform semantics.
	if err := repo.AddMember(ctx, &Membership{
		UserID: bob, GroupID: group.ID, InviteStatus: InvitePending,
	}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	isMember, err := repo.IsMember(ctx, bob, group.ID)
	if err != nil {
		t.Fatalf("IsMember() error = %v", err)
	}
	if !isMember {
		t.Error("pending invitee should pass the raw membership check")
	}
}

func TestGroupRepository_SetInviteStatus(t *testing.T) {
	db := testDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()

	owner := seedTestUser(t, db, "alice")
	bob := seedTestUser(t, db, "bob")

	group := &Group{Name: "g"}
	if err := repo.CreateGroup(ctx, group, owner); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if err := repo.AddMember(ctx, &Membership{
		UserID: bob, GroupID: group.ID, InviteStatus: InvitePending,
	}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	if err := repo.SetInviteStatus(ctx, bob, group.ID, InviteApproved); err != nil {
		t.Fatalf("SetInviteStatus() error = %v", err)
	}

	m, err := repo.GetMembership(ctx, bob, group.ID)
	if err != nil {
		t.Fatalf("GetMembership() error = %v", err)
	}
	if m.InviteStatus != InviteApproved {
		t.Errorf("InviteStatus = %q, want approved", m.InviteStatus)
	}

	err = repo.SetInviteStatus(ctx, "nobody", group.ID, InviteApproved)
	if !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("SetInviteStatus(nobody) err = %v, want ErrMembershipNotFound", err)
	}
}

func TestGroupRepository_TransferOwnership(t *testing.T) {
	db := testDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()

	alice := seedTestUser(t, db, "alice")
	bob := seedTestUser(t, db, "bob")

	group := &Group{Name: "g"}
	if err := repo.CreateGroup(ctx, group, alice); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if err := repo.AddMember(ctx, &Membership{UserID: bob, GroupID: group.ID}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	if err := repo.TransferOwnership(ctx, group.ID, alice, bob); err != nil {
		t.Fatalf("TransferOwnership() error = %v", err)
	}

	// New owner promoted, old owner demoted, still exactly one owner.
	bobM, _ := repo.GetMembership(ctx, bob, group.ID)
	if bobM.Role != GroupRoleOwner {
		t.Errorf("bob role = %q, want owner", bobM.Role)
	}
	aliceM, _ := repo.GetMembership(ctx, alice, group.ID)
	if aliceM.Role != GroupRoleAdmin {
		t.Errorf("alice role = %q, want admin", aliceM.Role)
	}
}

func TestGroupRepository_TransferOwnership_Failures(t *testing.T) {
	db := testDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()

	alice := seedTestUser(t, db, "alice")
	bob := seedTestUser(t, db, "bob")
	carol := seedTestUser(t, db, "carol")

	group := &Group{Name: "g"}
	if err := repo.CreateGroup(ctx, group, alice); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if err := repo.AddMember(ctx, &Membership{UserID: bob, GroupID: group.ID}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	// Non-owner cannot transfer.
	if err := repo.TransferOwnership(ctx, group.ID, bob, alice); !errors.Is(err, ErrNotOwner) {
		t.Errorf("TransferOwnership(non-owner) err = %v, want ErrNotOwner", err)
	}

	// Target must be a member; the whole transfer rolls back.
	if err := repo.TransferOwnership(ctx, group.ID, alice, carol); !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("TransferOwnership(non-member target) err = %v, want ErrMembershipNotFound", err)
	}
	aliceM, _ := repo.GetMembership(ctx, alice, group.ID)
	if aliceM.Role != GroupRoleOwner {
		t.Errorf("failed transfer must not demote the owner: role = %q", aliceM.Role)
	}
}

func TestGroupRepository_DeleteGroup_CascadesMemberships(t *testing.T) {
	db := testDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()

	alice := seedTestUser(t, db, "alice")

	group := &Group{Name: "g"}
	if err := repo.CreateGroup(ctx, group, alice); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	if err := repo.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}

	isMember, err := repo.IsMember(ctx, alice, group.ID)
	if err != nil {
		t.Fatalf("IsMember() error = %v", err)
	}
	if isMember {
		t.Error("membership should cascade away with the group")
	}
}

func TestGroupRepository_ListGroupsForUser(t *testing.T) {
	db := testDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()

	alice := seedTestUser(t, db, "alice")
	bob := seedTestUser(t, db, "bob")

	first := &Group{Name: "first"}
	if err := repo.CreateGroup(ctx, first, alice); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	second := &Group{Name: "second"}
	if err := repo.CreateGroup(ctx, second, bob); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	// Pending invite rows count as membership for listing purposes.
	err := repo.AddMember(ctx, &Membership{
		UserID: alice, GroupID: second.ID,
		Role: GroupRoleMember, InviteStatus: InvitePending,
	})
	if err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	groups, err := repo.ListGroupsForUser(ctx, alice)
	if err != nil {
		t.Fatalf("ListGroupsForUser() error = %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("ListGroupsForUser() returned %d groups, want 2", len(groups))
	}

	groups, err = repo.ListGroupsForUser(ctx, bob)
	if err != nil {
		t.Fatalf("ListGroupsForUser() error = %v", err)
	}
	if len(groups) != 1 || groups[0].Name != "second" {
		t.Errorf("ListGroupsForUser(bob) = %v, want only second", groups)
	}
}
