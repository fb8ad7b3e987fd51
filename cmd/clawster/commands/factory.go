package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	k8sclient "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/clawster/clawster/pkg/target"
	"github.com/clawster/clawster/pkg/targets/azurevm"
	"github.com/clawster/clawster/pkg/targets/cloudflare"
	"github.com/clawster/clawster/pkg/targets/cloudrun"
	"github.com/clawster/clawster/pkg/targets/ecsec2"
	k8starget "github.com/clawster/clawster/pkg/targets/kubernetes"
	"github.com/clawster/clawster/pkg/targets/local"
	"github.com/clawster/clawster/pkg/targets/remotevm"
	sshx "github.com/clawster/clawster/pkg/transports/ssh"
)

// buildTarget constructs the concrete deployment target for the selected
// backend, wiring real provider clients from ambient credentials.
func buildTarget(ctx context.Context, cfg *FileConfig) (target.DeploymentTarget, error) {
	switch target.Kind(cfg.Target) {
	case target.KindLocal:
		return buildLocalTarget(cfg)
	case target.KindRemoteVM:
		return buildRemoteVMTarget(cfg)
	case target.KindKubernetes:
		return buildKubernetesTarget(cfg)
	case target.KindECSEC2:
		return buildECSTarget(ctx, cfg)
	case target.KindAzureVM:
		return buildAzureVMTarget(cfg)
	case target.KindCloudRun:
		return buildCloudRunTarget(ctx, cfg)
	case target.KindCloudflareWorkers:
		return buildCloudflareTarget(cfg)
	default:
		return nil, fmt.Errorf("unknown target kind: %s", cfg.Target)
	}
}

func buildLocalTarget(cfg *FileConfig) (target.DeploymentTarget, error) {
	c := local.DefaultConfig(cfg.Profile)
	if s := cfg.Local; s != nil {
		if s.StateDir != "" {
			c.StateDir = s.StateDir
		}
		if s.GatewayBinary != "" {
			c.GatewayBinary = s.GatewayBinary
		}
		if s.InstallPackage != "" {
			c.InstallPackage = s.InstallPackage
		}
	}
	return local.NewTarget(c)
}

func buildRemoteVMTarget(cfg *FileConfig) (target.DeploymentTarget, error) {
	s := cfg.RemoteVM

	sshCfg := sshx.DefaultConfig(s.Host, s.User)
	if s.Port != 0 {
		sshCfg.Port = s.Port
	}
	if s.PrivateKeyPath != "" {
		sshCfg.PrivateKeyPath = s.PrivateKeyPath
	}
	if s.Password != "" {
		sshCfg.AuthMethod = sshx.AuthMethodPassword
		sshCfg.Password = s.Password
	}
	if s.KnownHostsPath != "" {
		sshCfg.KnownHostsPath = s.KnownHostsPath
	}
	if s.StrictHostKeyChecking != nil {
		sshCfg.StrictHostKeyChecking = *s.StrictHostKeyChecking
	}
	if s.ConnectTimeoutSeconds > 0 {
		sshCfg.ConnectTimeout = time.Duration(s.ConnectTimeoutSeconds) * time.Second
	}

	transport, err := sshx.NewClient(sshCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ssh transport: %w", err)
	}

	c := remotevm.DefaultConfig(cfg.Profile, s.Host)
	c.SSHPort = sshCfg.Port
	if s.ServiceUser != "" {
		c.ServiceUser = s.ServiceUser
	}
	c.ExtraPorts = s.ExtraPorts
	c.SkipHardening = s.SkipHardening
	return remotevm.NewTarget(c, transport)
}

func buildKubernetesTarget(cfg *FileConfig) (target.DeploymentTarget, error) {
	s := cfg.Kubernetes

	loading := clientcmd.NewDefaultClientConfigLoadingRules()
	if s.Kubeconfig != "" {
		loading.ExplicitPath = s.Kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: s.Context}
	restCfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loading, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	client, err := k8sclient.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	c := k8starget.DefaultConfig(cfg.Profile)
	if s.Namespace != "" {
		c.Namespace = s.Namespace
	}
	if s.Image != "" {
		c.Image = s.Image
	}
	if s.Replicas > 0 {
		c.Replicas = s.Replicas
	}
	c.AllowWithoutSysbox = s.AllowWithoutSysbox
	return k8starget.NewTarget(c, client)
}

func buildECSTarget(ctx context.Context, cfg *FileConfig) (target.DeploymentTarget, error) {
	s := cfg.ECS

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	c := ecsec2.DefaultConfig(cfg.Profile, s.Region)
	if s.Image != "" {
		c.Image = s.Image
	}
	if s.CPU > 0 {
		c.CPU = s.CPU
	}
	if s.Memory > 0 {
		c.Memory = s.Memory
	}
	return ecsec2.NewTarget(c,
		ecs.NewFromConfig(awsCfg),
		ec2.NewFromConfig(awsCfg),
		cloudwatchlogs.NewFromConfig(awsCfg))
}

func buildAzureVMTarget(cfg *FileConfig) (target.DeploymentTarget, error) {
	s := cfg.Azure

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire azure credentials: %w", err)
	}
	clients, err := azurevm.NewClients(s.SubscriptionID, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure clients: %w", err)
	}

	c := azurevm.DefaultConfig(cfg.Profile, s.SubscriptionID, s.ResourceGroup)
	c.TenantID = s.TenantID
	c.SSHPublicKey = s.SSHPublicKey
	if s.Location != "" {
		c.Location = s.Location
	}
	if s.VMSize != "" {
		c.VMSize = s.VMSize
	}
	if s.AdminUsername != "" {
		c.AdminUsername = s.AdminUsername
	}
	if s.EnableAppGateway != nil {
		c.EnableAppGateway = *s.EnableAppGateway
	}
	return azurevm.NewTarget(c, clients)
}

func buildCloudRunTarget(ctx context.Context, cfg *FileConfig) (target.DeploymentTarget, error) {
	s := cfg.CloudRun

	c := cloudrun.DefaultConfig(cfg.Profile, s.ProjectID)
	if s.Region != "" {
		c.Region = s.Region
	}
	if s.Image != "" {
		c.Image = s.Image
	}
	c.VPCConnector = s.VPCConnector
	c.AllowedCIDRs = s.AllowedCIDRs
	c.SSLCertificateID = s.SSLCertificateID
	if s.MaxInstances > 0 {
		c.MaxInstances = s.MaxInstances
	}

	clients, err := cloudrun.NewClients(ctx, c.ProjectID, c.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcp clients: %w", err)
	}
	return cloudrun.NewTarget(c, clients)
}

func buildCloudflareTarget(cfg *FileConfig) (target.DeploymentTarget, error) {
	s := cfg.Cloudflare

	c := cloudflare.DefaultConfig(cfg.Profile, s.AccountID)
	c.ProjectDir = s.ProjectDir
	c.WorkersSubdomain = s.WorkersSubdomain
	c.R2Bucket = s.R2Bucket
	c.R2AccessKeyID = s.R2AccessKeyID
	c.R2SecretAccessKey = s.R2SecretAccessKey
	return cloudflare.NewTarget(c)
}
