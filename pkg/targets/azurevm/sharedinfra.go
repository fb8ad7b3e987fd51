package azurevm

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/msi/armmsi"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"

	"github.com/clawster/clawster/pkg/provision"
)

// Built-in Azure role definition IDs.
const (
	roleStorageAccountKeyOperator = "81a9662b-bebf-436f-a333-f67b29880f12"
	roleKeyVaultSecretsUser       = "4633458b-17de-408a-b874-0445c86b69e6"
)

// SharedInfra is the resource set shared by every gateway VM in a
// resource group.
type SharedInfra struct {
	StorageAccountID string
	IdentityID       string
	PrincipalID      string
	VaultURI         string
}

// SharedInfraManager provisions the group-scoped storage account, file
// share, managed identity, and key vault, and grants the identity its
// two RBAC roles. Names derive from (subscription, resource group) only,
// so N VMs in one group converge on one set instead of provisioning N.
type SharedInfraManager struct {
	storage    storageAccountsAPI
	fileShares fileSharesAPI
	identities identitiesAPI
	vaults     vaultsAPI
	roles      roleAssignmentsAPI

	subscriptionID string
	resourceGroup  string
	location       string
	tenantID       string
}

// NewSharedInfraManager creates a shared-infra manager.
func NewSharedInfraManager(clients *Clients, subscriptionID, resourceGroup, location, tenantID string) *SharedInfraManager {
	return &SharedInfraManager{
		storage:        clients.StorageAccounts,
		fileShares:     clients.FileShares,
		identities:     clients.Identities,
		vaults:         clients.Vaults,
		roles:          clients.RoleAssignments,
		subscriptionID: subscriptionID,
		resourceGroup:  resourceGroup,
		location:       location,
		tenantID:       tenantID,
	}
}

// EnsureAll provisions the full shared set and returns the handles the
// per-VM provisioning needs.
func (m *SharedInfraManager) EnsureAll(ctx context.Context, names Names) (*SharedInfra, error) {
	account, err := m.ensureStorageAccount(ctx, names.StorageAccount)
	if err != nil {
		return nil, err
	}
	if err := m.ensureFileShare(ctx, names.StorageAccount, names.FileShare); err != nil {
		return nil, err
	}
	identity, err := m.ensureIdentity(ctx, names.Identity)
	if err != nil {
		return nil, err
	}
	vault, err := m.ensureKeyVault(ctx, names.KeyVault)
	if err != nil {
		return nil, err
	}

	principalID := ""
	if identity.Properties != nil && identity.Properties.PrincipalID != nil {
		principalID = *identity.Properties.PrincipalID
	}
	if principalID == "" {
		return nil, fmt.Errorf("managed identity %s has no principal id", names.Identity)
	}

	storageScope := storageAccountScope(m.subscriptionID, m.resourceGroup, names.StorageAccount)
	vaultScope := keyVaultScope(m.subscriptionID, m.resourceGroup, names.KeyVault)
	if err := m.AssignRoles(ctx, principalID, storageScope, vaultScope); err != nil {
		return nil, err
	}

	infra := &SharedInfra{PrincipalID: principalID}
	if account.ID != nil {
		infra.StorageAccountID = *account.ID
	}
	if identity.ID != nil {
		infra.IdentityID = *identity.ID
	}
	if vault.Properties != nil && vault.Properties.VaultURI != nil {
		infra.VaultURI = *vault.Properties.VaultURI
	}
	return infra, nil
}

func (m *SharedInfraManager) ensureStorageAccount(ctx context.Context, name string) (armstorage.Account, error) {
	return provision.Ensure(ctx, "storage account "+name,
		func(ctx context.Context) (armstorage.Account, error) {
			account, err := m.storage.GetProperties(ctx, m.resourceGroup, name)
			return account, classifyAzureError("get storage account", name, err)
		},
		func(ctx context.Context) (armstorage.Account, error) {
			account, err := m.storage.Create(ctx, m.resourceGroup, name, armstorage.AccountCreateParameters{
				Location: to.Ptr(m.location),
				Tags:     ownerTags(),
				Kind:     to.Ptr(armstorage.KindStorageV2),
				SKU:      &armstorage.SKU{Name: to.Ptr(armstorage.SKUNameStandardLRS)},
				Properties: &armstorage.AccountPropertiesCreateParameters{
					MinimumTLSVersion:      to.Ptr(armstorage.MinimumTLSVersionTLS12),
					AllowBlobPublicAccess:  to.Ptr(false),
					EnableHTTPSTrafficOnly: to.Ptr(true),
				},
			})
			return account, classifyAzureError("create storage account", name, err)
		},
	)
}

func (m *SharedInfraManager) ensureFileShare(ctx context.Context, accountName, shareName string) error {
	_, err := provision.Ensure(ctx, "file share "+shareName,
		func(ctx context.Context) (armstorage.FileShare, error) {
			share, err := m.fileShares.Get(ctx, m.resourceGroup, accountName, shareName)
			return share, classifyAzureError("get file share", shareName, err)
		},
		func(ctx context.Context) (armstorage.FileShare, error) {
			share, err := m.fileShares.Create(ctx, m.resourceGroup, accountName, shareName, armstorage.FileShare{})
			return share, classifyAzureError("create file share", shareName, err)
		},
	)
	return err
}

func (m *SharedInfraManager) ensureIdentity(ctx context.Context, name string) (armmsi.Identity, error) {
	return provision.Ensure(ctx, "managed identity "+name,
		func(ctx context.Context) (armmsi.Identity, error) {
			identity, err := m.identities.Get(ctx, m.resourceGroup, name)
			return identity, classifyAzureError("get identity", name, err)
		},
		func(ctx context.Context) (armmsi.Identity, error) {
			identity, err := m.identities.CreateOrUpdate(ctx, m.resourceGroup, name, armmsi.Identity{
				Location: to.Ptr(m.location),
				Tags:     ownerTags(),
			})
			return identity, classifyAzureError("create identity", name, err)
		},
	)
}

func (m *SharedInfraManager) ensureKeyVault(ctx context.Context, name string) (armkeyvault.Vault, error) {
	return provision.Ensure(ctx, "key vault "+name,
		func(ctx context.Context) (armkeyvault.Vault, error) {
			vault, err := m.vaults.Get(ctx, m.resourceGroup, name)
			return vault, classifyAzureError("get key vault", name, err)
		},
		func(ctx context.Context) (armkeyvault.Vault, error) {
			vault, err := m.vaults.CreateOrUpdate(ctx, m.resourceGroup, name, armkeyvault.VaultCreateOrUpdateParameters{
				Location: to.Ptr(m.location),
				Tags:     ownerTags(),
				Properties: &armkeyvault.VaultProperties{
					TenantID: to.Ptr(m.tenantID),
					SKU: &armkeyvault.SKU{
						Family: to.Ptr(armkeyvault.SKUFamilyA),
						Name:   to.Ptr(armkeyvault.SKUNameStandard),
					},
					// RBAC authorization, not access policies.
					EnableRbacAuthorization: to.Ptr(true),
				},
			})
			return vault, classifyAzureError("create key vault", name, err)
		},
	)
}

// AssignRoles grants the principal its storage and vault roles. The two
// assignments are unrelated API calls and run in parallel. Assignment
// names are deterministic hashes of (scope, principal, role), so repeats
// and races converge on the same logical assignment; the provider
// answers 409 for an existing one and that counts as satisfied.
func (m *SharedInfraManager) AssignRoles(ctx context.Context, principalID, storageScope, vaultScope string) error {
	assignments := []struct {
		scope  string
		roleID string
	}{
		{storageScope, roleStorageAccountKeyOperator},
		{vaultScope, roleKeyVaultSecretsUser},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(assignments))
	for i, assignment := range assignments {
		wg.Add(1)
		go func(i int, scope, roleID string) {
			defer wg.Done()
			errs[i] = m.assignRole(ctx, principalID, scope, roleID)
		}(i, assignment.scope, assignment.roleID)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *SharedInfraManager) assignRole(ctx context.Context, principalID, scope, roleID string) error {
	assignmentName := AssignmentName(scope, principalID, roleID)
	roleDefinitionID := fmt.Sprintf("/subscriptions/%s/providers/Microsoft.Authorization/roleDefinitions/%s", m.subscriptionID, roleID)

	_, err := provision.EnsureAssignment(ctx, "role assignment "+assignmentName,
		func(ctx context.Context) (armauthorization.RoleAssignment, error) {
			assignment, err := m.roles.Create(ctx, scope, assignmentName, armauthorization.RoleAssignmentCreateParameters{
				Properties: &armauthorization.RoleAssignmentProperties{
					PrincipalID:      to.Ptr(principalID),
					RoleDefinitionID: to.Ptr(roleDefinitionID),
				},
			})
			return assignment, classifyAzureError("create role assignment", assignmentName, err)
		},
		nil,
	)
	return err
}

// AssignmentName derives the deterministic role assignment identifier
// from its scope, principal, and role.
func AssignmentName(scope, principalID, roleID string) string {
	return provision.DeterministicID(scope, principalID, roleID)
}
