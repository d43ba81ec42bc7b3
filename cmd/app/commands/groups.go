package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
	"github.com/allisson/keycache/internal/groups/http/dto"
	groupsUseCase "github.com/allisson/keycache/internal/groups/usecase"
)

// RunCreateGroup creates a key group and prints its ID.
func RunCreateGroup(
	ctx context.Context,
	keyGroupUseCase groupsUseCase.KeyGroupUseCase,
	logger *slog.Logger,
	io IOTuple,
	name, description string,
	fingerprints []string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	group, err := keyGroupUseCase.Create(ctx, groupsDomain.KeyGroupInput{
		Name:         name,
		Description:  description,
		Fingerprints: fingerprints,
	})
	if err != nil {
		return fmt.Errorf("failed to create key group: %w", err)
	}

	logger.Info("key group created", slog.String("id", group.ID.String()), slog.String("name", group.Name))

	if format == "json" {
		return writeJSON(io.Writer, dto.MapKeyGroupToResponse(group))
	}
	_, err = fmt.Fprintf(io.Writer, "Key group %q created with ID %s (%d fingerprint(s))\n",
		group.Name, group.ID, len(group.Fingerprints))
	return err
}

// RunListGroups prints a page of key groups ordered by name.
func RunListGroups(
	ctx context.Context,
	keyGroupUseCase groupsUseCase.KeyGroupUseCase,
	io IOTuple,
	offset, limit int,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if offset < 0 || limit < 1 {
		return fmt.Errorf("invalid pagination: offset %d, limit %d", offset, limit)
	}

	groups, err := keyGroupUseCase.List(ctx, offset, limit)
	if err != nil {
		return fmt.Errorf("failed to list key groups: %w", err)
	}

	if format == "json" {
		return writeJSON(io.Writer, dto.MapKeyGroupsToListResponse(groups))
	}

	table := newTable(io.Writer, "ID", "NAME", "FINGERPRINTS", "DESCRIPTION")
	for _, group := range groups {
		table.Append([]string{
			group.ID.String(),
			group.Name,
			strings.Join(group.Fingerprints, ","),
			group.Description,
		})
	}
	table.Render()
	_, err = fmt.Fprintln(io.Writer, strconv.Itoa(len(groups))+" group(s)")
	return err
}

// RunDeleteGroup deletes a key group by ID.
func RunDeleteGroup(
	ctx context.Context,
	keyGroupUseCase groupsUseCase.KeyGroupUseCase,
	logger *slog.Logger,
	io IOTuple,
	id string,
) error {
	groupID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid key group id %q: %w", id, err)
	}

	if err := keyGroupUseCase.Delete(ctx, groupID); err != nil {
		return fmt.Errorf("failed to delete key group: %w", err)
	}

	logger.Info("key group deleted", slog.String("id", groupID.String()))
	_, err = fmt.Fprintf(io.Writer, "Key group %s deleted\n", groupID)
	return err
}
